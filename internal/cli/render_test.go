package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/Veraticus/the-books-must-balance/internal/ledger"
	"github.com/Veraticus/the-books-must-balance/internal/locator"
	"github.com/Veraticus/the-books-must-balance/internal/migration"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/storage"
)

func TestRenderPlan(t *testing.T) {
	out := RenderPlan(testPlan())

	assert.Contains(t, out, "Legacy records found:   3")
	assert.Contains(t, out, "Already migrated:       1")
	assert.Contains(t, out, "Ready to move:          2")
	assert.Contains(t, out, "2024-03-02")
	assert.Contains(t, out, "-12.30")
	assert.Contains(t, out, "l2 (unreadable")
	assert.Contains(t, out, `group "default"`)
}

func TestRenderPlan_Undated(t *testing.T) {
	plan := testPlan()
	plan.Invalid = 3
	plan.Undated = 2

	assert.Contains(t, RenderPlan(plan), "3 (2 without a date)")

	plan.Undated = 0
	assert.NotContains(t, RenderPlan(plan), "without a date")
}

func TestRenderPlan_DryRunAndTruncation(t *testing.T) {
	plan := &model.MigrationPlan{DryRun: true, TargetGroupID: "g"}
	for i := 0; i < planSampleSize+3; i++ {
		plan.Candidates = append(plan.Candidates, model.RawRecord{ID: "x", Fields: map[string]any{}})
	}

	out := RenderPlan(plan)
	assert.Contains(t, out, "Dry run")
	assert.Contains(t, out, "and 3 more")
}

func TestRenderOutcome(t *testing.T) {
	tests := []struct {
		outcome migration.Outcome
		want    string
	}{
		{migration.Outcome{Status: migration.StatusNoLegacyData}, "No legacy transactions"},
		{migration.Outcome{Status: migration.StatusCompleted}, "already moved"},
		{migration.Outcome{Status: migration.StatusCompleted, Plan: testPlan(), Result: model.MigrationResult{MigratedCount: 2}}, "Migration complete"},
		{migration.Outcome{Status: migration.StatusDeclined}, "legacy reset"},
		{migration.Outcome{Status: migration.StatusFailed}, "could not run"},
		{migration.Outcome{Status: migration.StatusUnknown}, "asked again"},
	}

	for _, tt := range tests {
		t.Run(string(tt.outcome.Status), func(t *testing.T) {
			assert.Contains(t, RenderOutcome(tt.outcome), tt.want)
		})
	}
}

func TestRenderResult(t *testing.T) {
	clean := RenderResult(model.MigrationResult{MigratedCount: 8})
	assert.Contains(t, clean, "up to date")
	assert.NotContains(t, clean, "Failed")

	partial := RenderResult(model.MigrationResult{MigratedCount: 8, SkippedCount: 1, ErrorCount: 1})
	assert.Contains(t, partial, "Failed")
	assert.Contains(t, partial, "retried next time")
}

func TestRenderDiagnosis(t *testing.T) {
	out := RenderDiagnosis(locator.Diagnosis{
		OwnerID:            "u1",
		OwnerField:         "uid",
		UsedFallback:       true,
		LegacyTotal:        10,
		LegacyOwned:        4,
		CurrentUnavailable: errors.New("permission denied"),
		LegacyFields:       map[string]int{"value": 4, "uid": 4},
	})

	assert.Contains(t, out, "10 documents in total")
	assert.Contains(t, out, "matched on uid")
	assert.Contains(t, out, "alternate field")
	assert.Contains(t, out, "unavailable: permission denied")
	assert.Less(t, strings.Index(out, "uid "), strings.Index(out, "value "))
}

func TestRenderMonth(t *testing.T) {
	txns := []model.Transaction{
		{ID: "c1", Kind: model.KindIncome, Category: "Salary", Amount: decimal.NewFromInt(1000),
			OccursOn: model.NewDate(2024, time.March, 1), Location: model.LocationCurrent},
		{ID: "l1", Kind: model.KindExpense, Category: "Food", Amount: decimal.RequireFromString("25.5"),
			OccursOn: model.NewDate(2024, time.March, 2), Location: model.LocationLegacy, Paid: true},
	}
	view := ledger.View{Transactions: txns, Summary: ledger.Summarize(txns), Skipped: 1, LegacyUnavailable: true}

	out := RenderMonth(view, time.March, 2024)

	assert.Contains(t, out, "March 2024")
	assert.Contains(t, out, "+1000.00")
	assert.Contains(t, out, "-25.50")
	assert.Contains(t, out, "legacy l1")
	assert.Contains(t, out, "974.50")
	assert.Contains(t, out, "1 stored records could not be read")
	assert.Contains(t, out, "Legacy records are unavailable")

	assert.Contains(t, RenderMonth(ledger.View{Summary: ledger.Summarize(nil)}, time.April, 2024), "No transactions")
}

func TestRenderGroupsAndBackups(t *testing.T) {
	assert.Contains(t, RenderGroups(nil), "No groups")
	groups := RenderGroups([]model.Group{
		{ID: "default", Name: "General Ledger", IsDefault: true},
		{ID: "g2", Name: "Trip", Description: "Summer"},
	})
	assert.Contains(t, groups, SuccessIcon+" General Ledger")
	assert.Contains(t, groups, "Summer")

	assert.Contains(t, RenderBackups(nil), "No backups")
	backups := RenderBackups([]storage.BackupInfo{{
		ID:        "before-migration",
		IsAuto:    true,
		CreatedAt: time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC),
		RowCounts: map[string]int{"legacy_transactions": 7, "user_transactions": 2},
	}})
	assert.Contains(t, backups, "before-migration")
	assert.Contains(t, backups, "(auto)")
	assert.Contains(t, backups, "7")
}

func TestProgressReporter(t *testing.T) {
	var out bytes.Buffer
	r := NewProgressReporter(&out, "Moving records")

	r.Finish()
	assert.Empty(t, out.String())

	for i := 1; i <= 4; i++ {
		r.Report(i, 4)
	}
	r.Finish()

	assert.Contains(t, out.String(), "Moving records")
	assert.Contains(t, out.String(), "4/4")
}
