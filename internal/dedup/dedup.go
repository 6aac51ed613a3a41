// Package dedup collapses records that represent the same logical
// transaction into a single survivor.
package dedup

import (
	"strings"

	"github.com/Veraticus/the-books-must-balance/internal/model"
)

// Report describes what a deduplication pass removed.
type Report struct {
	// MergedInto maps each discarded record id to its survivor's id.
	MergedInto map[string]string
	// Removed holds the ids of discarded records, in input order.
	Removed []string
	// Groups counts groups that had more than one member.
	Groups int
}

// Deduplicate returns one survivor per logical transaction, preserving the
// relative order of survivors.
//
// Records claiming the same SourceID (per owner) are one transaction.
// Records without a SourceID are grouped by content fingerprint only when
// they share a non-empty migration batch, so a user-created record is never
// merged with a coincidentally identical one. The survivor is the record with
// the latest Timestamp; ties go to the lexicographically smaller ID.
func Deduplicate(records []model.Transaction) []model.Transaction {
	survivors, _ := DeduplicateWithReport(records)
	return survivors
}

// DeduplicateWithReport is Deduplicate plus an account of what was dropped.
func DeduplicateWithReport(records []model.Transaction) ([]model.Transaction, Report) {
	winners := make(map[string]int)
	sizes := make(map[string]int)
	keys := make([]string, len(records))

	for i := range records {
		key := groupKey(&records[i])
		keys[i] = key
		if key == "" {
			continue
		}
		sizes[key]++
		best, seen := winners[key]
		if !seen || prefer(&records[i], &records[best]) {
			winners[key] = i
		}
	}

	report := Report{MergedInto: make(map[string]string)}
	for _, n := range sizes {
		if n > 1 {
			report.Groups++
		}
	}

	survivors := make([]model.Transaction, 0, len(records))
	for i, rec := range records {
		if keys[i] == "" || winners[keys[i]] == i {
			survivors = append(survivors, rec)
			continue
		}
		report.Removed = append(report.Removed, rec.ID)
		report.MergedInto[rec.ID] = records[winners[keys[i]]].ID
	}

	return survivors, report
}

// Merge combines current-location records with legacy records for display.
// Legacy records already claimed by a current record's SourceID are dropped
// before the union is deduplicated.
func Merge(current, legacy []model.Transaction) []model.Transaction {
	claimed := ClaimedSources(current)

	combined := make([]model.Transaction, 0, len(current)+len(legacy))
	combined = append(combined, current...)
	for _, rec := range legacy {
		if claimed[claimKey(rec.OwnerID, rec.ID)] {
			continue
		}
		combined = append(combined, rec)
	}

	return Deduplicate(combined)
}

// ClaimedSources indexes the (owner, source id) pairs present in records.
func ClaimedSources(records []model.Transaction) map[string]bool {
	claimed := make(map[string]bool, len(records))
	for _, rec := range records {
		if rec.SourceID != "" {
			claimed[claimKey(rec.OwnerID, rec.SourceID)] = true
		}
	}
	return claimed
}

// IsClaimed reports whether a legacy record id appears in an index built by
// ClaimedSources.
func IsClaimed(claimed map[string]bool, ownerID, id string) bool {
	return claimed[claimKey(ownerID, id)]
}

func claimKey(ownerID, id string) string {
	return ownerID + "\x00" + id
}

func groupKey(rec *model.Transaction) string {
	if rec.SourceID != "" {
		return "src\x00" + claimKey(rec.OwnerID, rec.SourceID)
	}
	if rec.BatchID == "" {
		return ""
	}
	fp := rec.Fingerprint()
	return strings.Join([]string{
		"fp", rec.OwnerID, rec.BatchID, fp.Description, fp.Amount, fp.OccursOn.String(),
	}, "\x00")
}

// prefer reports whether a should survive over b.
func prefer(a, b *model.Transaction) bool {
	ta, tb := a.Timestamp(), b.Timestamp()
	if !ta.Equal(tb) {
		return ta.After(tb)
	}
	return a.ID < b.ID
}
