package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/model"
)

type memDoc struct {
	fields map[string]any
	id     string
	owner  string
}

// MemoryStore is an in-memory RecordStore, FlagStore and GroupStore with
// hooks for injecting the failures real document stores produce.
type MemoryStore struct {
	// FailWrite, when set, is consulted before every Write; a non-nil
	// return fails that write.
	FailWrite func(loc model.Location, fields map[string]any) error
	flags     map[string]string
	denied    map[model.Location]error
	groups    map[string][]model.Group
	docs      map[model.Location][]memDoc
	// WriteDelay makes every Write wait, honoring context cancellation.
	WriteDelay time.Duration
	// TransientQueryFailures fails that many Query calls with a retryable error.
	TransientQueryFailures int
	mu                     sync.Mutex
	writes                 int
	queries                int
	flagWriteErr           error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[model.Location][]memDoc),
		flags:  make(map[string]string),
		denied: make(map[model.Location]error),
		groups: make(map[string][]model.Group),
	}
}

// Deny makes every operation on loc fail with common.ErrPermissionDenied.
func (m *MemoryStore) Deny(loc model.Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.denied[loc] = fmt.Errorf("%s location: %w", loc, common.ErrPermissionDenied)
}

// Allow clears a previous Deny.
func (m *MemoryStore) Allow(loc model.Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.denied, loc)
}

// FailFlagWrites makes WriteFlag and DeleteFlag return err.
func (m *MemoryStore) FailFlagWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flagWriteErr = err
}

// SeedLegacy adds documents to the legacy location. A document's "id" field
// becomes its id.
func (m *MemoryStore) SeedLegacy(docs ...map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range docs {
		id, _ := doc["id"].(string)
		if id == "" {
			id = uuid.New().String()
		}
		fields := copyFields(doc)
		delete(fields, "id")
		m.docs[model.LocationLegacy] = append(m.docs[model.LocationLegacy], memDoc{id: id, fields: fields})
	}
}

// SeedCurrent adds a document to an owner's current location.
func (m *MemoryStore) SeedCurrent(ownerID, id string, fields map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[model.LocationCurrent] = append(m.docs[model.LocationCurrent], memDoc{id: id, owner: ownerID, fields: copyFields(fields)})
}

// Documents returns a copy of the owner's documents in loc. For the legacy
// location all documents are returned.
func (m *MemoryStore) Documents(loc model.Location, ownerID string) []model.RawRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.RawRecord
	for _, d := range m.docs[loc] {
		if loc == model.LocationCurrent && d.owner != ownerID {
			continue
		}
		out = append(out, model.RawRecord{ID: d.id, Location: loc, Fields: copyFields(d.fields)})
	}
	return out
}

// Writes returns how many Write calls succeeded.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Queries returns how many Query calls were made.
func (m *MemoryStore) Queries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queries
}

// Flags returns a copy of every persisted flag.
func (m *MemoryStore) Flags() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.flags))
	for k, v := range m.flags {
		out[k] = v
	}
	return out
}

// Query implements service.RecordStore.
func (m *MemoryStore) Query(_ context.Context, loc model.Location, ownerField, ownerID string) ([]model.RawRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queries++
	if err := m.denied[loc]; err != nil {
		return nil, err
	}
	if m.TransientQueryFailures > 0 {
		m.TransientQueryFailures--
		return nil, &common.RetryableError{Err: common.ErrLocationUnavailable, Retryable: true}
	}

	var out []model.RawRecord
	for _, d := range m.docs[loc] {
		if loc == model.LocationCurrent {
			if d.owner != ownerID {
				continue
			}
		} else if v, ok := d.fields[ownerField].(string); !ok || v != ownerID {
			continue
		}
		out = append(out, model.RawRecord{ID: d.id, Location: loc, Fields: copyFields(d.fields)})
	}
	return out, nil
}

// Count implements service.RecordStore.
func (m *MemoryStore) Count(_ context.Context, loc model.Location) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.denied[loc]; err != nil {
		return 0, err
	}
	return len(m.docs[loc]), nil
}

// Write implements service.RecordStore.
func (m *MemoryStore) Write(ctx context.Context, loc model.Location, ownerID string, fields map[string]any) (string, error) {
	m.mu.Lock()
	delay := m.WriteDelay
	failWrite := m.FailWrite
	denied := m.denied[loc]
	m.mu.Unlock()

	if denied != nil {
		return "", denied
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	if failWrite != nil {
		if err := failWrite(loc, fields); err != nil {
			return "", err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	stored := copyFields(fields)
	if loc == model.LocationLegacy {
		if _, ok := stored["userId"]; !ok {
			stored["userId"] = ownerID
		}
	}
	m.docs[loc] = append(m.docs[loc], memDoc{id: id, owner: ownerID, fields: stored})
	m.writes++
	return id, nil
}

// Update implements service.RecordStore.
func (m *MemoryStore) Update(_ context.Context, loc model.Location, ownerID, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.find(loc, ownerID, id)
	if err != nil {
		return err
	}
	for k, v := range fields {
		m.docs[loc][i].fields[k] = v
	}
	return nil
}

// Delete implements service.RecordStore.
func (m *MemoryStore) Delete(_ context.Context, loc model.Location, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, err := m.find(loc, ownerID, id)
	if err != nil {
		return err
	}
	m.docs[loc] = append(m.docs[loc][:i], m.docs[loc][i+1:]...)
	return nil
}

func (m *MemoryStore) find(loc model.Location, ownerID, id string) (int, error) {
	if err := m.denied[loc]; err != nil {
		return -1, err
	}
	for i, d := range m.docs[loc] {
		if d.id != id {
			continue
		}
		if loc == model.LocationCurrent && d.owner != ownerID {
			continue
		}
		if loc == model.LocationLegacy && !ownsDoc(d.fields, ownerID) {
			return -1, fmt.Errorf("document %s: %w", id, common.ErrPermissionDenied)
		}
		return i, nil
	}
	return -1, fmt.Errorf("document %s: %w", id, common.ErrNotFound)
}

// ReadFlag implements service.FlagStore.
func (m *MemoryStore) ReadFlag(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.flags[key]
	return v, ok, nil
}

// WriteFlag implements service.FlagStore.
func (m *MemoryStore) WriteFlag(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flagWriteErr != nil {
		return m.flagWriteErr
	}
	m.flags[key] = value
	return nil
}

// DeleteFlag implements service.FlagStore.
func (m *MemoryStore) DeleteFlag(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.flagWriteErr != nil {
		return m.flagWriteErr
	}
	delete(m.flags, key)
	return nil
}

// ListGroups implements service.GroupStore.
func (m *MemoryStore) ListGroups(_ context.Context, ownerID string) ([]model.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Group(nil), m.groups[ownerID]...), nil
}

// CreateGroup implements service.GroupStore.
func (m *MemoryStore) CreateGroup(_ context.Context, group *model.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	for _, g := range m.groups[group.OwnerID] {
		if g.ID == group.ID {
			return fmt.Errorf("group %s: %w", group.ID, common.ErrDuplicateEntry)
		}
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}
	m.groups[group.OwnerID] = append(m.groups[group.OwnerID], *group)
	return nil
}

// EnsureDefaultGroup implements service.GroupStore.
func (m *MemoryStore) EnsureDefaultGroup(_ context.Context, ownerID, name string) (model.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	groups := m.groups[ownerID]
	for _, g := range groups {
		if g.IsDefault {
			return g, nil
		}
	}
	if len(groups) > 0 {
		return groups[0], nil
	}
	if name == "" {
		name = model.DefaultGroupName
	}
	g := model.Group{ID: model.DefaultGroupID, OwnerID: ownerID, Name: name, IsDefault: true, CreatedAt: time.Now().UTC()}
	m.groups[ownerID] = append(m.groups[ownerID], g)
	return g, nil
}

func ownsDoc(fields map[string]any, ownerID string) bool {
	for _, name := range []string{"ownerId", "userId", "uid", "user", "userEmail"} {
		if v, ok := fields[name].(string); ok && v == ownerID {
			return true
		}
	}
	return false
}

func copyFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
