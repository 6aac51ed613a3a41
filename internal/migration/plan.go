package migration

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/dedup"
	"github.com/Veraticus/the-books-must-balance/internal/locator"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/normalize"
)

// buildPlan runs the CHECKING phase: list both locations, drop legacy records
// the current location already claims, and deduplicate what is left.
func (o *Orchestrator) buildPlan(ctx context.Context, ownerID string) (*model.MigrationPlan, error) {
	legacy := o.locator.ListCandidates(ctx, ownerID, model.LocationLegacy)
	current := o.locator.ListCandidates(ctx, ownerID, model.LocationCurrent)

	if locator.BothUnavailable(legacy, current) {
		return nil, fmt.Errorf("%w: no location reachable: %w", common.ErrRunFailed, legacy.Unavailable)
	}
	if !current.Available() && len(legacy.Records) > 0 {
		return nil, fmt.Errorf("%w: cannot tell which records were already migrated: %w",
			common.ErrRunFailed, current.Unavailable)
	}

	plan := &model.MigrationPlan{
		ID:            uuid.New().String(),
		OwnerID:       ownerID,
		BatchID:       uuid.New().String(),
		CreatedAt:     o.now(),
		TargetGroupID: o.lookupTargetGroup(ctx, ownerID),
		Merged:        make(map[string][]string),
		Found:         len(legacy.Records),
	}

	claimed := dedup.ClaimedByDocuments(ownerID, current.Records)

	var (
		pending []model.RawRecord
		valid   []model.Transaction
	)
	for _, raw := range legacy.Records {
		if dedup.IsRecordClaimed(claimed, ownerID, raw) {
			plan.AlreadyMigrated++
			continue
		}
		pending = append(pending, raw)

		txn, err := normalize.Normalize(raw)
		if err != nil {
			plan.Invalid++
			if normalize.IsDropped(err) {
				plan.Undated++
			}
			continue
		}
		// BatchID stays as stored: only copies an earlier run wrote carry
		// one, so user-entered records are never merged by content
		txn.OwnerID = ownerID
		valid = append(valid, txn)
	}

	_, report := dedup.DeduplicateWithReport(valid)
	plan.DuplicatesResolved = len(report.Removed)
	for removed, survivor := range report.MergedInto {
		plan.Merged[survivor] = append(plan.Merged[survivor], removed)
	}
	for _, ids := range plan.Merged {
		sort.Strings(ids)
	}

	for _, raw := range pending {
		if _, removed := report.MergedInto[raw.ID]; !removed {
			plan.Candidates = append(plan.Candidates, raw)
		}
	}

	return plan, nil
}

// lookupTargetGroup picks the owner's existing default group without
// creating anything, falling back to the well-known default id.
func (o *Orchestrator) lookupTargetGroup(ctx context.Context, ownerID string) string {
	if o.groups == nil {
		return model.DefaultGroupID
	}

	groups, err := o.groups.ListGroups(ctx, ownerID)
	if err != nil {
		common.OwnerLogger(ownerID).Warn("Could not list groups, using default", "error", err)
		return model.DefaultGroupID
	}
	if len(groups) == 0 {
		return model.DefaultGroupID
	}

	chosen := groups[0]
	for _, g := range groups {
		if g.IsDefault {
			return g.ID
		}
		if g.CreatedAt.Before(chosen.CreatedAt) {
			chosen = g
		}
	}
	return chosen.ID
}
