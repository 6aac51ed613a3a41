package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// ListGroups returns the owner's groups, default first and then by name.
func (s *SQLiteStorage) ListGroups(ctx context.Context, ownerID string) ([]model.Group, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}
	return listGroups(ctx, s.db, ownerID)
}

func listGroups(ctx context.Context, q queryable, ownerID string) ([]model.Group, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT owner_id, id, name, description, color, is_default, created_at
		FROM owner_groups
		WHERE owner_id = ?
		ORDER BY is_default DESC, name ASC, created_at ASC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var groups []model.Group
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.OwnerID, &g.ID, &g.Name, &g.Description, &g.Color, &g.IsDefault, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating groups: %w", err)
	}

	slog.Debug("retrieved groups", "owner_id", ownerID, "count", len(groups))
	return groups, nil
}

// GetGroup returns one group by id.
func (s *SQLiteStorage) GetGroup(ctx context.Context, ownerID, id string) (*model.Group, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return getGroup(ctx, s.db, ownerID, id)
}

func getGroup(ctx context.Context, q queryable, ownerID, id string) (*model.Group, error) {
	var g model.Group
	err := q.QueryRowContext(ctx, `
		SELECT owner_id, id, name, description, color, is_default, created_at
		FROM owner_groups WHERE owner_id = ? AND id = ?
	`, ownerID, id).Scan(&g.OwnerID, &g.ID, &g.Name, &g.Description, &g.Color, &g.IsDefault, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query group: %w", err)
	}
	return &g, nil
}

// CreateGroup inserts a group, assigning an id and creation time when unset.
// A new default group takes the flag from the owner's previous default.
func (s *SQLiteStorage) CreateGroup(ctx context.Context, group *model.Group) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateGroup(group); err != nil {
		return err
	}
	if !group.IsDefault {
		return insertGroup(ctx, s.db, group)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := clearDefault(ctx, tx, group.OwnerID); err != nil {
		return err
	}
	if err := insertGroup(ctx, tx, group); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit group: %w", err)
	}
	return nil
}

// UpdateGroup saves a group's name, description and color. Setting IsDefault
// moves the default flag to this group; clearing it is done by making
// another group the default.
func (s *SQLiteStorage) UpdateGroup(ctx context.Context, group *model.Group) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateGroup(group); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE owner_groups SET name = ?, description = ?, color = ?
		WHERE owner_id = ? AND id = ?
	`, group.Name, group.Description, group.Color, group.OwnerID, group.ID)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	if err := requireRow(result, group.ID); err != nil {
		return err
	}

	if group.IsDefault {
		if err := markDefault(ctx, tx, group.OwnerID, group.ID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit group update: %w", err)
	}
	return nil
}

// SetDefaultGroup makes id the owner's only default group.
func (s *SQLiteStorage) SetDefaultGroup(ctx context.Context, ownerID, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := getGroup(ctx, tx, ownerID, id); err != nil {
		return err
	}
	if err := markDefault(ctx, tx, ownerID, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit default group: %w", err)
	}

	slog.Info("Changed default group", "owner_id", ownerID, "group_id", id)
	return nil
}

// DeleteGroup removes a group. An owner's last group cannot be deleted.
// Transactions filed under it keep their group id.
func (s *SQLiteStorage) DeleteGroup(ctx context.Context, ownerID, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := getGroup(ctx, tx, ownerID, id); err != nil {
		return err
	}

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM owner_groups WHERE owner_id = ?`, ownerID).Scan(&count); err != nil {
		return fmt.Errorf("failed to count groups: %w", err)
	}
	if count <= 1 {
		return fmt.Errorf("%w: cannot delete the only group", common.ErrInvalidState)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM owner_groups WHERE owner_id = ? AND id = ?`, ownerID, id); err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit group deletion: %w", err)
	}
	return nil
}

func markDefault(ctx context.Context, q queryable, ownerID, id string) error {
	if _, err := q.ExecContext(ctx, `
		UPDATE owner_groups SET is_default = (id = ?) WHERE owner_id = ?
	`, id, ownerID); err != nil {
		return fmt.Errorf("failed to set default group: %w", err)
	}
	return nil
}

func clearDefault(ctx context.Context, q queryable, ownerID string) error {
	if _, err := q.ExecContext(ctx, `
		UPDATE owner_groups SET is_default = 0 WHERE owner_id = ? AND is_default = 1
	`, ownerID); err != nil {
		return fmt.Errorf("failed to clear default group: %w", err)
	}
	return nil
}

func requireRow(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("group %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func insertGroup(ctx context.Context, q queryable, group *model.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt.IsZero() {
		group.CreatedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO owner_groups (owner_id, id, name, description, color, is_default, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, group.OwnerID, group.ID, group.Name, group.Description, group.Color, group.IsDefault, group.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("group %s: %w", group.ID, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

// EnsureDefaultGroup returns the group migrated records should land in.
// It prefers the owner's default group, then their oldest group, and only
// creates a new default group when the owner has none at all.
func (s *SQLiteStorage) EnsureDefaultGroup(ctx context.Context, ownerID, name string) (model.Group, error) {
	if err := validateContext(ctx); err != nil {
		return model.Group{}, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return model.Group{}, err
	}
	if name == "" {
		name = model.DefaultGroupName
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Group{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	groups, err := listGroups(ctx, tx, ownerID)
	if err != nil {
		return model.Group{}, err
	}

	if len(groups) > 0 {
		chosen := groups[0]
		if !chosen.IsDefault {
			for _, g := range groups[1:] {
				if g.CreatedAt.Before(chosen.CreatedAt) {
					chosen = g
				}
			}
		}
		return chosen, tx.Commit()
	}

	group := model.Group{
		ID:        model.DefaultGroupID,
		OwnerID:   ownerID,
		Name:      name,
		IsDefault: true,
	}
	if err := insertGroup(ctx, tx, &group); err != nil {
		return model.Group{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Group{}, fmt.Errorf("failed to commit default group: %w", err)
	}

	slog.Info("Created default group", "owner_id", ownerID, "group_id", group.ID, "name", group.Name)
	return group, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
