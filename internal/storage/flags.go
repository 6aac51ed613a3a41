package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Flag is one persisted key/value pair.
type Flag struct {
	UpdatedAt time.Time
	Key       string
	Value     string
}

// ReadFlag returns the value stored under key and whether it exists.
func (s *SQLiteStorage) ReadFlag(ctx context.Context, key string) (string, bool, error) {
	if err := validateContext(ctx); err != nil {
		return "", false, err
	}
	if err := validateString(key, "key"); err != nil {
		return "", false, err
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM migration_flags WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read flag %s: %w", key, err)
	}
	return value, true, nil
}

// WriteFlag stores value under key, replacing any previous value.
func (s *SQLiteStorage) WriteFlag(ctx context.Context, key, value string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(key, "key"); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO migration_flags (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write flag %s: %w", key, err)
	}
	return nil
}

// DeleteFlag removes key. Deleting a missing key is not an error.
func (s *SQLiteStorage) DeleteFlag(ctx context.Context, key string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(key, "key"); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM migration_flags WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete flag %s: %w", key, err)
	}
	return nil
}

// ListFlags returns all flags whose key starts with prefix, ordered by key.
func (s *SQLiteStorage) ListFlags(ctx context.Context, prefix string) ([]Flag, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, updated_at FROM migration_flags
		WHERE substr(key, 1, length(?)) = ?
		ORDER BY key
	`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list flags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var flags []Flag
	for rows.Next() {
		var f Flag
		if err := rows.Scan(&f.Key, &f.Value, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan flag: %w", err)
		}
		flags = append(flags, f)
	}
	return flags, rows.Err()
}
