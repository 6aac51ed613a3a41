// Package locator finds an owner's transaction documents across the legacy
// and current storage locations.
package locator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/service"
)

var (
	// CanonicalOwnerFields are tried first against the legacy location.
	CanonicalOwnerFields = []string{"ownerId", "userId"}
	// AlternateOwnerFields are only scanned when the canonical fields match
	// nothing in a non-empty legacy location.
	AlternateOwnerFields = []string{"uid", "user", "userEmail"}
)

// Listing is the outcome of one location lookup. A location that could not be
// read yields no records and carries the reason in Unavailable.
type Listing struct {
	Unavailable error
	Location    model.Location
	// OwnerField is the first legacy field that matched any record.
	OwnerField string
	Records    []model.RawRecord
	// UsedFallback is set when records were found through an alternate field.
	UsedFallback bool
}

// Available reports whether the location could be read.
func (l Listing) Available() bool {
	return l.Unavailable == nil
}

// Config holds configuration options for the locator.
type Config struct {
	Retry service.RetryOptions
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Retry: service.RetryOptions{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// Locator enumerates candidate records from each location.
type Locator struct {
	store  service.RecordStore
	config Config
}

// New creates a locator with the default configuration.
func New(store service.RecordStore) *Locator {
	return NewWithConfig(store, DefaultConfig())
}

// NewWithConfig creates a locator with custom configuration.
func NewWithConfig(store service.RecordStore, config Config) *Locator {
	return &Locator{store: store, config: config}
}

// ListCandidates returns the owner's records in loc. It never fails: errors
// reaching the location are logged and reported through Listing.Unavailable.
func (l *Locator) ListCandidates(ctx context.Context, ownerID string, loc model.Location) Listing {
	listing := Listing{Location: loc}
	logger := common.OwnerLogger(ownerID).With("location", loc)

	var err error
	switch loc {
	case model.LocationLegacy:
		err = l.listLegacy(ctx, ownerID, &listing)
	case model.LocationCurrent:
		var records []model.RawRecord
		records, err = l.query(ctx, loc, "", ownerID)
		listing.Records = records
	default:
		err = fmt.Errorf("unknown location %q: %w", loc, common.ErrLocationUnavailable)
	}

	if err != nil {
		listing.Records = nil
		listing.OwnerField = ""
		listing.UsedFallback = false
		listing.Unavailable = err
		if common.IsLocationError(err) {
			logger.Warn("Location unavailable, treating as empty", "error", err)
		} else {
			logger.Error("Failed to list records, treating as empty", "error", err)
		}
		return listing
	}

	logger.Debug("Listed records",
		"count", len(listing.Records),
		"owner_field", listing.OwnerField,
		"fallback", listing.UsedFallback)
	return listing
}

func (l *Locator) listLegacy(ctx context.Context, ownerID string, listing *Listing) error {
	seen := make(map[string]bool)
	collect := func(fields []string) error {
		for _, field := range fields {
			records, err := l.query(ctx, model.LocationLegacy, field, ownerID)
			if err != nil {
				return err
			}
			for _, r := range records {
				if seen[r.ID] {
					continue
				}
				seen[r.ID] = true
				listing.Records = append(listing.Records, r)
				if listing.OwnerField == "" {
					listing.OwnerField = field
				}
			}
		}
		return nil
	}

	if err := collect(CanonicalOwnerFields); err != nil {
		return err
	}
	if len(listing.Records) > 0 {
		return nil
	}

	total, err := l.count(ctx, model.LocationLegacy)
	if err != nil {
		return err
	}
	if total == 0 {
		return nil
	}

	if err := collect(AlternateOwnerFields); err != nil {
		return err
	}
	listing.UsedFallback = len(listing.Records) > 0
	return nil
}

func (l *Locator) query(ctx context.Context, loc model.Location, field, ownerID string) ([]model.RawRecord, error) {
	var records []model.RawRecord
	err := common.WithRetry(ctx, func() error {
		var qErr error
		records, qErr = l.store.Query(ctx, loc, field, ownerID)
		return qErr
	}, l.config.Retry)
	return records, err
}

func (l *Locator) count(ctx context.Context, loc model.Location) (int, error) {
	var n int
	err := common.WithRetry(ctx, func() error {
		var cErr error
		n, cErr = l.store.Count(ctx, loc)
		return cErr
	}, l.config.Retry)
	return n, err
}

// Diagnosis summarizes where an owner's records live and what shape the
// legacy ones have.
type Diagnosis struct {
	LegacyUnavailable  error
	CurrentUnavailable error
	// LegacyFields counts how many of the owner's legacy records carry each field.
	LegacyFields map[string]int
	OwnerID      string
	OwnerField   string
	LegacyTotal  int
	LegacyOwned  int
	CurrentOwned int
	// AlreadyMigrated counts current records whose sourceId points at one of
	// the owner's legacy records.
	AlreadyMigrated int
	UsedFallback    bool
}

// Inspect gathers a Diagnosis for ownerID without writing anything.
func (l *Locator) Inspect(ctx context.Context, ownerID string) Diagnosis {
	d := Diagnosis{OwnerID: ownerID, LegacyFields: make(map[string]int)}

	legacy := l.ListCandidates(ctx, ownerID, model.LocationLegacy)
	current := l.ListCandidates(ctx, ownerID, model.LocationCurrent)

	d.LegacyUnavailable = legacy.Unavailable
	d.CurrentUnavailable = current.Unavailable
	d.OwnerField = legacy.OwnerField
	d.UsedFallback = legacy.UsedFallback
	d.LegacyOwned = len(legacy.Records)
	d.CurrentOwned = len(current.Records)

	if total, err := l.count(ctx, model.LocationLegacy); err == nil {
		d.LegacyTotal = total
	} else if d.LegacyUnavailable == nil {
		d.LegacyUnavailable = err
	}

	legacyIDs := make(map[string]bool, len(legacy.Records))
	for _, r := range legacy.Records {
		legacyIDs[r.ID] = true
		for field := range r.Fields {
			d.LegacyFields[field]++
		}
	}

	for _, r := range current.Records {
		v, _, ok := r.Field("sourceId", "originalId")
		if !ok {
			continue
		}
		if id, isString := v.(string); isString && legacyIDs[id] {
			d.AlreadyMigrated++
		}
	}

	return d
}

// BothUnavailable reports whether neither location could be read.
func BothUnavailable(legacy, current Listing) bool {
	return !legacy.Available() && !current.Available()
}

// IsPermissionDenied reports whether a listing failed because access was refused.
func IsPermissionDenied(l Listing) bool {
	return l.Unavailable != nil && errors.Is(l.Unavailable, common.ErrPermissionDenied)
}
