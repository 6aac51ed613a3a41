package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// legacyOwnerFields are the document fields that have identified a record's
// owner in the flat legacy collection over time.
var legacyOwnerFields = []string{"ownerId", "userId", "uid", "user", "userEmail"}

// Query returns the owner's documents in loc, oldest first.
func (s *SQLiteStorage) Query(ctx context.Context, loc model.Location, ownerField, ownerID string) ([]model.RawRecord, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateLocation(loc); err != nil {
		return nil, err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return nil, err
	}

	var (
		rows *sql.Rows
		err  error
	)
	switch loc {
	case model.LocationLegacy:
		if err := validateFieldName(ownerField); err != nil {
			return nil, err
		}
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, doc FROM legacy_transactions
			WHERE json_extract(doc, ?) = ?
			ORDER BY created_at ASC, rowid ASC
		`, "$."+ownerField, ownerID)
	default:
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, doc FROM user_transactions
			WHERE owner_id = ?
			ORDER BY created_at ASC, rowid ASC
		`, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query %s transactions: %w", loc, err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.RawRecord
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		fields, err := decodeDoc(doc)
		if err != nil {
			slog.Warn("Skipping undecodable document", "location", loc, "record_id", id, "error", err)
			continue
		}
		records = append(records, model.RawRecord{ID: id, Location: loc, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}

	return records, nil
}

// Count returns the number of documents in loc across all owners.
func (s *SQLiteStorage) Count(ctx context.Context, loc model.Location) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateLocation(loc); err != nil {
		return 0, err
	}

	query := "SELECT COUNT(*) FROM user_transactions"
	if loc == model.LocationLegacy {
		query = "SELECT COUNT(*) FROM legacy_transactions"
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s transactions: %w", loc, err)
	}
	return count, nil
}

// Write creates a document and returns its generated id.
func (s *SQLiteStorage) Write(ctx context.Context, loc model.Location, ownerID string, fields map[string]any) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	if err := validateLocation(loc); err != nil {
		return "", err
	}
	if err := validateString(ownerID, "ownerID"); err != nil {
		return "", err
	}
	if err := validateFields(fields); err != nil {
		return "", err
	}

	id := uuid.New().String()
	if err := s.insertDoc(ctx, s.db, loc, ownerID, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

func (s *SQLiteStorage) insertDoc(ctx context.Context, q queryable, loc model.Location, ownerID, id string, fields map[string]any) error {
	if loc == model.LocationLegacy && legacyOwner(fields) == "" {
		// Legacy documents carry their owner in the document itself
		fields = withField(fields, "userId", ownerID)
	}

	doc, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	now := time.Now().UTC()
	if loc == model.LocationLegacy {
		_, err = q.ExecContext(ctx,
			`INSERT INTO legacy_transactions (id, doc, created_at) VALUES (?, ?, ?)`,
			id, string(doc), now)
	} else {
		_, err = q.ExecContext(ctx,
			`INSERT INTO user_transactions (owner_id, id, doc, created_at) VALUES (?, ?, ?, ?)`,
			ownerID, id, string(doc), now)
	}
	if err != nil {
		return fmt.Errorf("failed to insert %s document %s: %w", loc, id, err)
	}
	return nil
}

// Update merges fields into an existing document owned by ownerID.
func (s *SQLiteStorage) Update(ctx context.Context, loc model.Location, ownerID, id string, fields map[string]any) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateLocation(loc); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if err := validateFields(fields); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := s.loadOwnedDoc(ctx, tx, loc, ownerID, id)
	if err != nil {
		return err
	}
	for k, v := range fields {
		existing[k] = v
	}

	doc, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	if loc == model.LocationLegacy {
		_, err = tx.ExecContext(ctx, `UPDATE legacy_transactions SET doc = ? WHERE id = ?`, string(doc), id)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE user_transactions SET doc = ? WHERE owner_id = ? AND id = ?`, string(doc), ownerID, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update %s document %s: %w", loc, id, err)
	}

	return tx.Commit()
}

// Delete removes a document owned by ownerID.
func (s *SQLiteStorage) Delete(ctx context.Context, loc model.Location, ownerID, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateLocation(loc); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := s.loadOwnedDoc(ctx, tx, loc, ownerID, id); err != nil {
		return err
	}

	if loc == model.LocationLegacy {
		_, err = tx.ExecContext(ctx, `DELETE FROM legacy_transactions WHERE id = ?`, id)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM user_transactions WHERE owner_id = ? AND id = ?`, ownerID, id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete %s document %s: %w", loc, id, err)
	}

	return tx.Commit()
}

// loadOwnedDoc fetches a document and checks that ownerID may touch it.
func (s *SQLiteStorage) loadOwnedDoc(ctx context.Context, q queryable, loc model.Location, ownerID, id string) (map[string]any, error) {
	var (
		doc string
		err error
	)
	if loc == model.LocationLegacy {
		err = q.QueryRowContext(ctx, `SELECT doc FROM legacy_transactions WHERE id = ?`, id).Scan(&doc)
	} else {
		err = q.QueryRowContext(ctx, `SELECT doc FROM user_transactions WHERE owner_id = ? AND id = ?`, ownerID, id).Scan(&doc)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s document %s: %w", loc, id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s document %s: %w", loc, id, err)
	}

	fields, err := decodeDoc(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s document %s: %w", loc, id, err)
	}

	if loc == model.LocationLegacy && !ownsLegacy(fields, ownerID) {
		return nil, fmt.Errorf("legacy document %s: %w", id, common.ErrPermissionDenied)
	}
	return fields, nil
}

// ImportLegacy bulk-loads documents into the legacy location, as found in an
// export of the old flat collection. A document's "id" field becomes its id;
// documents without one get a generated id. Existing ids are left untouched.
func (s *SQLiteStorage) ImportLegacy(ctx context.Context, docs []map[string]any) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO legacy_transactions (id, doc, created_at) VALUES (?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	imported := 0
	now := time.Now().UTC()
	for i, doc := range docs {
		id, _ := doc["id"].(string)
		if id == "" {
			id = uuid.New().String()
		}
		body := make(map[string]any, len(doc))
		for k, v := range doc {
			if k != "id" {
				body[k] = v
			}
		}

		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("document at index %d: %w", i, err)
		}

		// Preserve the export's order through created_at
		res, err := stmt.ExecContext(ctx, id, string(encoded), now.Add(time.Duration(i)*time.Microsecond))
		if err != nil {
			return 0, fmt.Errorf("failed to import document %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			imported++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}
	return imported, nil
}

// LegacyOwners returns every distinct owner identifier found in the legacy
// location, across all owner fields.
func (s *SQLiteStorage) LegacyOwners(ctx context.Context) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM legacy_transactions`)
	if err != nil {
		return nil, fmt.Errorf("failed to query legacy transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	seen := make(map[string]bool)
	var owners []string
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		fields, err := decodeDoc(doc)
		if err != nil {
			continue
		}
		for _, name := range legacyOwnerFields {
			if v, ok := fields[name].(string); ok && v != "" && !seen[v] {
				seen[v] = true
				owners = append(owners, v)
			}
		}
	}
	return owners, rows.Err()
}

func decodeDoc(doc string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewBufferString(doc))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = make(map[string]any)
	}
	return fields, nil
}

func legacyOwner(fields map[string]any) string {
	for _, name := range legacyOwnerFields {
		if v, ok := fields[name].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func ownsLegacy(fields map[string]any, ownerID string) bool {
	for _, name := range legacyOwnerFields {
		if v, ok := fields[name].(string); ok && v == ownerID {
			return true
		}
	}
	return false
}

func withField(fields map[string]any, key string, value any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[key] = value
	return out
}
