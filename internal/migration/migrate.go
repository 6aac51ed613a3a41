package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/dedup"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/normalize"
)

// RequestMigration copies the pending plan's candidates into the current
// location. plan must be the one CheckForLegacyData returned for this owner.
// An empty targetGroupID files unassigned records under the plan's target.
//
// Records are written one at a time in plan order. A record that fails to
// normalize is skipped and a failed write is counted; neither stops the
// run. Once started, the run ignores ctx cancellation and finishes.
func (o *Orchestrator) RequestMigration(ctx context.Context, ownerID string, plan *model.MigrationPlan, targetGroupID string) (model.MigrationResult, error) {
	err := o.transition(ownerID, StatusMigrating, func(s *session) bool {
		return s.status == StatusAwaitingConsent && plan != nil && s.plan == plan
	})
	if err != nil {
		return model.MigrationResult{}, err
	}

	runCtx := context.WithoutCancel(ctx)
	logger := common.OwnerLogger(ownerID).With("plan_id", plan.ID, "batch", plan.BatchID)

	result, err := o.migrate(runCtx, logger, ownerID, plan, targetGroupID)
	if err != nil {
		logger.Error("Migration failed", "error", err, "errors", result.ErrorCount)
		o.settle(ownerID, StatusFailed, nil)
		return result, err
	}

	if result.ErrorCount == 0 {
		flagCtx, cancel := context.WithTimeout(runCtx, o.writeTimeout)
		defer cancel()
		if err := o.flags.WriteFlag(flagCtx, model.FlagKey(ownerID), model.FlagMigrated); err != nil {
			logger.Error("Failed to persist migration flag", "error", err)
		}
	} else {
		logger.Warn("Migration finished with failed writes, they will be retried next session",
			"errors", result.ErrorCount)
	}

	logger.Info("Migration completed",
		"migrated", result.MigratedCount,
		"skipped", result.SkippedCount,
		"errors", result.ErrorCount)
	o.settle(ownerID, StatusCompleted, nil)
	return result, nil
}

func (o *Orchestrator) migrate(ctx context.Context, logger *slog.Logger, ownerID string, plan *model.MigrationPlan, targetGroupID string) (model.MigrationResult, error) {
	var result model.MigrationResult

	target := o.resolveTarget(ctx, ownerID, plan, targetGroupID)
	migratedAt := o.now().UTC()
	total := len(plan.Candidates)
	locationFailures := 0

	logger.Info("Starting legacy migration", "candidates", total, "target_group", target)

	for i, raw := range plan.Candidates {
		err := o.migrateOne(ctx, ownerID, plan, raw, target, migratedAt)
		switch {
		case err == nil:
			result.MigratedCount++
		case normalize.IsSkip(err):
			result.SkippedCount++
			logger.Warn("Skipping legacy record", "record_id", raw.ID, "error", err)
		default:
			result.ErrorCount++
			if common.IsLocationError(err) {
				locationFailures++
			}
			logger.Error("Failed to write migrated record", "record_id", raw.ID, "error", err)
		}

		if o.progress != nil {
			o.progress(i+1, total)
		}
	}

	if result.MigratedCount == 0 && result.ErrorCount > 0 && locationFailures == result.ErrorCount {
		return result, fmt.Errorf("%w: current location refused every write", common.ErrRunFailed)
	}
	return result, nil
}

func (o *Orchestrator) migrateOne(ctx context.Context, ownerID string, plan *model.MigrationPlan, raw model.RawRecord, target string, migratedAt time.Time) error {
	txn, err := normalize.Normalize(raw)
	if err != nil {
		return err
	}

	txn.OwnerID = ownerID
	if txn.GroupID == "" {
		txn.GroupID = target
	}
	if txn.SourceID == "" {
		txn.SourceID = raw.ID
	}
	txn.Origin = model.OriginMigrated
	txn.MigratedAt = migratedAt
	txn.BatchID = plan.BatchID

	fields := normalize.Encode(txn)
	fields["originalId"] = raw.ID
	if merged := plan.Merged[raw.ID]; len(merged) > 0 {
		fields[dedup.MergedSourcesField] = merged
	}

	writeCtx, cancel := context.WithTimeout(ctx, o.writeTimeout)
	defer cancel()

	if o.limiter != nil {
		if err := o.limiter.Wait(writeCtx); err != nil {
			return fmt.Errorf("%w: record %s: %w", common.ErrWriteFailed, raw.ID, err)
		}
	}

	if _, err := o.store.Write(writeCtx, model.LocationCurrent, ownerID, fields); err != nil {
		return fmt.Errorf("%w: record %s: %w", common.ErrWriteFailed, raw.ID, err)
	}
	return nil
}

// resolveTarget settles the group unassigned records are filed under. The
// owner's default group is created here, at the first write, rather than
// during the read-only check.
func (o *Orchestrator) resolveTarget(ctx context.Context, ownerID string, plan *model.MigrationPlan, targetGroupID string) string {
	target := targetGroupID
	if target == "" {
		target = plan.TargetGroupID
	}
	if target == "" {
		target = model.DefaultGroupID
	}

	if o.groups == nil || target != model.DefaultGroupID {
		return target
	}

	group, err := o.groups.EnsureDefaultGroup(ctx, ownerID, o.defaultGroupName)
	if err != nil {
		common.OwnerLogger(ownerID).Warn("Could not ensure default group", "error", err)
		return target
	}
	return group.ID
}
