package model

import "time"

// Values persisted under an owner's migration flag.
const (
	FlagMigrated = "true"
	FlagSkipped  = "skipped"
)

// FlagKey returns the key an owner's migration status is stored under.
func FlagKey(ownerID string) string {
	return "migrated_" + ownerID
}

// MigrationPlan is computed on each detection pass and discarded once acted
// upon or declined.
type MigrationPlan struct {
	CreatedAt time.Time
	ID        string
	OwnerID   string
	BatchID   string
	// TargetGroupID receives every candidate that has no group of its own.
	TargetGroupID string
	// Merged maps a surviving candidate's id to the ids of the legacy records
	// deduplication folded into it.
	Merged map[string][]string
	// Candidates are legacy records not yet present in the current location,
	// in the order they were found, after deduplication.
	Candidates []RawRecord
	// Found counts every legacy record that belonged to the owner.
	Found int
	// AlreadyMigrated counts legacy records a current record already claims.
	AlreadyMigrated int
	// Invalid counts candidates that will not survive normalization.
	Invalid int
	// Undated counts the invalid candidates that had no usable date at all.
	Undated            int
	DuplicatesResolved int
	DryRun             bool
}

// CandidateCount is the number of legacy records considered for this run,
// before deduplication.
func (p *MigrationPlan) CandidateCount() int {
	return len(p.Candidates) + p.DuplicatesResolved
}

// AfterDedup is the number of records that will be attempted.
func (p *MigrationPlan) AfterDedup() int {
	return len(p.Candidates)
}

// MigrationResult reports how a migration run went.
type MigrationResult struct {
	MigratedCount int
	SkippedCount  int
	ErrorCount    int
}

// Total is the number of candidates the run looked at.
func (r MigrationResult) Total() int {
	return r.MigratedCount + r.SkippedCount + r.ErrorCount
}
