// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// RecordStore is the minimal document store the reconciliation engine reads
// and writes through. Locations that cannot be reached return errors wrapping
// common.ErrPermissionDenied or common.ErrLocationUnavailable.
type RecordStore interface {
	// Query returns the owner's documents in loc. For the legacy location,
	// ownerField names the document field that must equal ownerID; the current
	// location is nested per owner and ignores it.
	Query(ctx context.Context, loc model.Location, ownerField, ownerID string) ([]model.RawRecord, error)
	// Count returns the number of documents in loc across all owners.
	Count(ctx context.Context, loc model.Location) (int, error)
	// Write creates a document and returns its id.
	Write(ctx context.Context, loc model.Location, ownerID string, fields map[string]any) (string, error)
	// Update merges fields into an existing document.
	Update(ctx context.Context, loc model.Location, ownerID, id string, fields map[string]any) error
	// Delete removes a document.
	Delete(ctx context.Context, loc model.Location, ownerID, id string) error
}

// FlagStore persists small string flags such as an owner's migration status.
type FlagStore interface {
	// ReadFlag returns the value under key and whether it was set.
	ReadFlag(ctx context.Context, key string) (string, bool, error)
	WriteFlag(ctx context.Context, key, value string) error
	DeleteFlag(ctx context.Context, key string) error
}

// GroupStore manages an owner's groups (budgets/classes).
type GroupStore interface {
	ListGroups(ctx context.Context, ownerID string) ([]model.Group, error)
	CreateGroup(ctx context.Context, group *model.Group) error
	// EnsureDefaultGroup returns the owner's default group, creating it with
	// the given name when the owner has none.
	EnsureDefaultGroup(ctx context.Context, ownerID, name string) (model.Group, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
