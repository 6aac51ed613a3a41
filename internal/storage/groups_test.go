package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/model"
)

func TestEnsureDefaultGroup_CreatesWhenNone(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	group, err := store.EnsureDefaultGroup(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultGroupID, group.ID)
	assert.Equal(t, model.DefaultGroupName, group.Name)
	assert.True(t, group.IsDefault)

	// Second call reuses it
	again, err := store.EnsureDefaultGroup(ctx, "u1", "Other")
	require.NoError(t, err)
	assert.Equal(t, group.ID, again.ID)

	groups, err := store.ListGroups(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, groups, 1)
}

func TestEnsureDefaultGroup_PrefersExisting(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateGroup(ctx, &model.Group{ID: "late", OwnerID: "u1", Name: "Alpha", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, store.CreateGroup(ctx, &model.Group{ID: "early", OwnerID: "u1", Name: "Zulu", CreatedAt: base}))

	group, err := store.EnsureDefaultGroup(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "early", group.ID, "oldest group wins when none is marked default")

	require.NoError(t, store.CreateGroup(ctx, &model.Group{ID: "home", OwnerID: "u1", Name: "Home", IsDefault: true, CreatedAt: base.Add(2 * time.Hour)}))
	group, err = store.EnsureDefaultGroup(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "home", group.ID)
}

func TestCreateGroup_Duplicate(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.CreateGroup(ctx, &model.Group{ID: "g1", OwnerID: "u1", Name: "One"}))
	err := store.CreateGroup(ctx, &model.Group{ID: "g1", OwnerID: "u1", Name: "Again"})
	assert.ErrorIs(t, err, common.ErrDuplicateEntry)

	// Same id under another owner is fine
	require.NoError(t, store.CreateGroup(ctx, &model.Group{ID: "g1", OwnerID: "u2", Name: "One"}))
}

func TestGetGroup(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	g := &model.Group{OwnerID: "u1", Name: "Travel", Color: "#00ff00"}
	require.NoError(t, store.CreateGroup(ctx, g))
	assert.NotEmpty(t, g.ID)

	got, err := store.GetGroup(ctx, "u1", g.ID)
	require.NoError(t, err)
	assert.Equal(t, "Travel", got.Name)
	assert.Equal(t, "#00ff00", got.Color)

	_, err = store.GetGroup(ctx, "u2", g.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func defaultIDs(t *testing.T, store *SQLiteStorage, ownerID string) []string {
	t.Helper()
	groups, err := store.ListGroups(context.Background(), ownerID)
	require.NoError(t, err)
	var ids []string
	for _, g := range groups {
		if g.IsDefault {
			ids = append(ids, g.ID)
		}
	}
	return ids
}

func TestCreateGroup_DefaultReplacesPrevious(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.CreateGroup(ctx, &model.Group{ID: "a", OwnerID: "u1", Name: "A", IsDefault: true}))
	require.NoError(t, store.CreateGroup(ctx, &model.Group{ID: "b", OwnerID: "u1", Name: "B", IsDefault: true}))
	require.NoError(t, store.CreateGroup(ctx, &model.Group{ID: "c", OwnerID: "u2", Name: "C", IsDefault: true}))

	assert.Equal(t, []string{"b"}, defaultIDs(t, store, "u1"))
	assert.Equal(t, []string{"c"}, defaultIDs(t, store, "u2"))
}

func TestUpdateGroup(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.CreateGroup(ctx, &model.Group{ID: "a", OwnerID: "u1", Name: "A", IsDefault: true}))
	require.NoError(t, store.CreateGroup(ctx, &model.Group{ID: "b", OwnerID: "u1", Name: "B"}))

	g, err := store.GetGroup(ctx, "u1", "b")
	require.NoError(t, err)
	g.Name = "Household"
	g.Color = "#00ff00"
	g.IsDefault = true
	require.NoError(t, store.UpdateGroup(ctx, g))

	got, err := store.GetGroup(ctx, "u1", "b")
	require.NoError(t, err)
	assert.Equal(t, "Household", got.Name)
	assert.Equal(t, "#00ff00", got.Color)
	assert.Equal(t, []string{"b"}, defaultIDs(t, store, "u1"))

	err = store.UpdateGroup(ctx, &model.Group{ID: "missing", OwnerID: "u1", Name: "X"})
	assert.ErrorIs(t, err, common.ErrNotFound)

	err = store.UpdateGroup(ctx, &model.Group{ID: "b", OwnerID: "u1", Name: " "})
	assert.ErrorIs(t, err, ErrInvalidGroup)
}

func TestSetDefaultGroup(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.CreateGroup(ctx, &model.Group{ID: "a", OwnerID: "u1", Name: "A", IsDefault: true}))
	require.NoError(t, store.CreateGroup(ctx, &model.Group{ID: "b", OwnerID: "u1", Name: "B"}))

	require.NoError(t, store.SetDefaultGroup(ctx, "u1", "b"))
	assert.Equal(t, []string{"b"}, defaultIDs(t, store, "u1"))

	group, err := store.EnsureDefaultGroup(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "b", group.ID)

	assert.ErrorIs(t, store.SetDefaultGroup(ctx, "u1", "missing"), common.ErrNotFound)
	assert.Equal(t, []string{"b"}, defaultIDs(t, store, "u1"), "failed change keeps the old default")
}

func TestDeleteGroup(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.CreateGroup(ctx, &model.Group{ID: "a", OwnerID: "u1", Name: "A"}))
	require.NoError(t, store.CreateGroup(ctx, &model.Group{ID: "b", OwnerID: "u1", Name: "B"}))

	require.NoError(t, store.DeleteGroup(ctx, "u1", "a"))
	_, err := store.GetGroup(ctx, "u1", "a")
	assert.ErrorIs(t, err, common.ErrNotFound)

	assert.ErrorIs(t, store.DeleteGroup(ctx, "u1", "b"), common.ErrInvalidState, "last group stays")
	assert.ErrorIs(t, store.DeleteGroup(ctx, "u1", "a"), common.ErrNotFound)
}
