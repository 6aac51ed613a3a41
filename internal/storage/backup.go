package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// maxAutoBackups is how many automatic backups are kept before pruning.
const maxAutoBackups = 5

// Backup errors.
var (
	ErrBackupNotFound    = errors.New("backup not found")
	ErrBackupCorrupted   = errors.New("backup integrity check failed")
	ErrBackupExists      = errors.New("backup already exists")
	ErrInvalidBackupName = errors.New("invalid backup name: cannot contain path separators")
	ErrInMemoryDatabase  = errors.New("in-memory databases cannot be backed up")
)

// BackupManager snapshots the database file, typically right before a
// legacy migration writes anything.
type BackupManager struct {
	db         *sql.DB
	dbPath     string
	backupsDir string
}

// BackupInfo describes one backup on disk.
type BackupInfo struct {
	CreatedAt     time.Time      `json:"created_at"`
	RowCounts     map[string]int `json:"row_counts"`
	ID            string         `json:"id"`
	Description   string         `json:"description"`
	FileSize      int64          `json:"file_size"`
	SchemaVersion int            `json:"schema_version"`
	IsAuto        bool           `json:"is_auto"`
}

// LegacyRecords is the number of documents in the legacy location at backup time.
func (b BackupInfo) LegacyRecords() int { return b.RowCounts["legacy_transactions"] }

// CurrentRecords is the number of documents in the current location at backup time.
func (b BackupInfo) CurrentRecords() int { return b.RowCounts["user_transactions"] }

// NewBackupManager creates a backup manager storing snapshots next to dbPath.
func NewBackupManager(db *sql.DB, dbPath string) (*BackupManager, error) {
	if dbPath == ":memory:" {
		return nil, ErrInMemoryDatabase
	}

	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database path: %w", err)
	}

	backupsDir := filepath.Join(filepath.Dir(absPath), "backups")
	if err := os.MkdirAll(backupsDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create backups directory: %w", err)
	}

	return &BackupManager{
		db:         db,
		dbPath:     absPath,
		backupsDir: backupsDir,
	}, nil
}

// Create snapshots the database under name.
func (bm *BackupManager) Create(ctx context.Context, name, description string) (*BackupInfo, error) {
	return bm.create(ctx, name, description, false)
}

func (bm *BackupManager) create(ctx context.Context, name, description string, auto bool) (*BackupInfo, error) {
	if name == "" {
		name = fmt.Sprintf("backup-%s", time.Now().Format("2006-01-02-150405"))
	}
	if err := validateBackupName(name); err != nil {
		return nil, err
	}

	backupPath := bm.dataPath(name)
	if _, err := os.Stat(backupPath); err == nil {
		return nil, ErrBackupExists
	}

	var schemaVersion int
	if err := bm.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&schemaVersion); err != nil {
		return nil, fmt.Errorf("failed to get schema version: %w", err)
	}

	if err := bm.snapshot(ctx, backupPath); err != nil {
		return nil, fmt.Errorf("failed to back up database: %w", err)
	}

	stat, err := os.Stat(backupPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat backup: %w", err)
	}

	info := BackupInfo{
		ID:            name,
		CreatedAt:     time.Now(),
		Description:   description,
		FileSize:      stat.Size(),
		RowCounts:     bm.rowCounts(ctx),
		SchemaVersion: schemaVersion,
		IsAuto:        auto,
	}

	if err := writeMetadata(bm.metaPath(name), info); err != nil {
		if rmErr := os.Remove(backupPath); rmErr != nil {
			slog.Error("failed to remove backup after metadata failure", "error", rmErr)
		}
		return nil, fmt.Errorf("failed to save backup metadata: %w", err)
	}

	if err := bm.recordMetadata(ctx, info); err != nil {
		// The sidecar file is authoritative
		slog.Warn("failed to record backup metadata in database", "error", err)
	}

	return &info, nil
}

// List returns all backups, newest first.
func (bm *BackupManager) List(_ context.Context) ([]BackupInfo, error) {
	entries, err := os.ReadDir(bm.backupsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backups directory: %w", err)
	}

	backups := make([]BackupInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".meta.json") {
			continue
		}
		info, err := readMetadata(filepath.Join(bm.backupsDir, entry.Name()))
		if err != nil {
			slog.Debug("skipping unreadable backup metadata", "file", entry.Name(), "error", err)
			continue
		}
		backups = append(backups, *info)
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// Restore replaces the database file with a backup. The manager's database
// handle is closed; callers must reopen storage afterwards.
func (bm *BackupManager) Restore(_ context.Context, name string) error {
	if err := validateBackupName(name); err != nil {
		return err
	}

	backupPath := bm.dataPath(name)
	if _, err := os.Stat(backupPath); err != nil {
		if os.IsNotExist(err) {
			return ErrBackupNotFound
		}
		return fmt.Errorf("failed to access backup: %w", err)
	}

	if err := verifyIntegrity(backupPath); err != nil {
		return fmt.Errorf("%w: %w", ErrBackupCorrupted, err)
	}

	if err := bm.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	safety := bm.dbPath + ".restore-backup"
	if err := copyFile(bm.dbPath, safety); err != nil {
		return fmt.Errorf("failed to save current database: %w", err)
	}

	if err := copyFile(backupPath, bm.dbPath); err != nil {
		if restoreErr := copyFile(safety, bm.dbPath); restoreErr != nil {
			slog.Error("failed to put current database back after restore failure", "error", restoreErr)
		}
		return fmt.Errorf("failed to restore backup: %w", err)
	}

	// Stale WAL files from the replaced database must not be replayed
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(bm.dbPath + suffix); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove journal file", "path", bm.dbPath+suffix, "error", err)
		}
	}

	if err := os.Remove(safety); err != nil {
		slog.Error("failed to remove restore safety copy", "error", err)
	}
	return nil
}

// Delete removes a backup and its metadata.
func (bm *BackupManager) Delete(ctx context.Context, name string) error {
	if err := validateBackupName(name); err != nil {
		return err
	}

	if err := os.Remove(bm.dataPath(name)); err != nil {
		if os.IsNotExist(err) {
			return ErrBackupNotFound
		}
		return fmt.Errorf("failed to remove backup: %w", err)
	}
	if err := os.Remove(bm.metaPath(name)); err != nil {
		slog.Debug("failed to remove backup metadata", "error", err)
	}
	if _, err := bm.db.ExecContext(ctx, "DELETE FROM backup_metadata WHERE id = ?", name); err != nil {
		slog.Debug("failed to remove backup metadata row", "error", err)
	}
	return nil
}

// AutoBackup creates an automatic backup tagged with reason and prunes old
// automatic backups.
func (bm *BackupManager) AutoBackup(ctx context.Context, reason string) (*BackupInfo, error) {
	name := fmt.Sprintf("auto-%s-%s", reason, time.Now().Format("2006-01-02-150405.000"))
	info, err := bm.create(ctx, name, fmt.Sprintf("Automatic backup before %s", reason), true)
	if err != nil {
		return nil, fmt.Errorf("failed to create automatic backup: %w", err)
	}

	if err := bm.pruneAuto(ctx); err != nil {
		slog.Warn("failed to prune automatic backups", "error", err)
	}
	return info, nil
}

func (bm *BackupManager) pruneAuto(ctx context.Context) error {
	backups, err := bm.List(ctx)
	if err != nil {
		return err
	}

	kept := 0
	for _, b := range backups {
		if !b.IsAuto {
			continue
		}
		kept++
		if kept > maxAutoBackups {
			if err := bm.Delete(ctx, b.ID); err != nil {
				slog.Debug("failed to delete old automatic backup", "backup", b.ID, "error", err)
			}
		}
	}
	return nil
}

func (bm *BackupManager) dataPath(name string) string {
	return filepath.Join(bm.backupsDir, name+".db")
}

func (bm *BackupManager) metaPath(name string) string {
	return filepath.Join(bm.backupsDir, name+".meta.json")
}

func (bm *BackupManager) rowCounts(ctx context.Context) map[string]int {
	queries := map[string]string{
		"legacy_transactions": "SELECT COUNT(*) FROM legacy_transactions",
		"user_transactions":   "SELECT COUNT(*) FROM user_transactions",
		"migration_flags":     "SELECT COUNT(*) FROM migration_flags",
		"owner_groups":        "SELECT COUNT(*) FROM owner_groups",
	}

	counts := make(map[string]int, len(queries))
	for table, query := range queries {
		var n int
		if err := bm.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
			n = 0
		}
		counts[table] = n
	}
	return counts
}

func (bm *BackupManager) snapshot(ctx context.Context, dest string) error {
	if _, err := bm.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("failed to checkpoint WAL: %w", err)
	}

	if strings.ContainsAny(dest, `'";`) {
		return fmt.Errorf("invalid destination path: %s", dest)
	}
	// #nosec G201 - dest is built from a validated backup name
	if _, err := bm.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", dest)); err != nil {
		slog.Debug("VACUUM INTO failed, falling back to file copy", "error", err)
		return copyFile(bm.dbPath, dest)
	}
	return nil
}

func (bm *BackupManager) recordMetadata(ctx context.Context, info BackupInfo) error {
	counts, err := json.Marshal(info.RowCounts)
	if err != nil {
		return err
	}
	_, err = bm.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO backup_metadata
		(id, created_at, description, file_size, row_counts, schema_version, is_auto)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, info.ID, info.CreatedAt, info.Description, info.FileSize, string(counts), info.SchemaVersion, info.IsAuto)
	return err
}

func validateBackupName(name string) error {
	if strings.ContainsAny(name, `/\'";`) || strings.Contains(name, "..") {
		return ErrInvalidBackupName
	}
	return nil
}

func writeMetadata(path string, info BackupInfo) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readMetadata(path string) (*BackupInfo, error) {
	// #nosec G304 - path comes from the backups directory listing
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var info BackupInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func verifyIntegrity(path string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

func copyFile(src, dst string) error {
	// #nosec G304 - src is the database or a backup under our control
	source, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}
	defer func() { _ = source.Close() }()

	tmp := dst + ".tmp"
	// #nosec G304 - tmp sits beside a path under our control
	destination, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if _, err := io.Copy(destination, source); err != nil {
		_ = destination.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := destination.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
