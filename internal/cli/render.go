package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-books-must-balance/internal/ledger"
	"github.com/Veraticus/the-books-must-balance/internal/locator"
	"github.com/Veraticus/the-books-must-balance/internal/migration"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/normalize"
	"github.com/Veraticus/the-books-must-balance/internal/storage"
)

// planSampleSize is how many candidates RenderPlan previews.
const planSampleSize = 5

// RenderPlan summarizes a migration plan for a consent prompt or dry run.
func RenderPlan(plan *model.MigrationPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Legacy records found:   %d\n", plan.Found)
	fmt.Fprintf(&b, "Already migrated:       %d\n", plan.AlreadyMigrated)
	fmt.Fprintf(&b, "Duplicates resolved:    %d\n", plan.DuplicatesResolved)
	if plan.Invalid > 0 {
		skipped := fmt.Sprint(plan.Invalid)
		if plan.Undated > 0 {
			skipped += fmt.Sprintf(" (%d without a date)", plan.Undated)
		}
		fmt.Fprintf(&b, "Unreadable, skipped:    %s\n", WarningStyle.Render(skipped))
	}
	fmt.Fprintf(&b, "Ready to move:          %s\n", BoldStyle.Render(fmt.Sprint(plan.AfterDedup())))
	fmt.Fprintf(&b, "Unassigned records go to group %q\n", plan.TargetGroupID)

	if len(plan.Candidates) > 0 {
		b.WriteString("\n" + SubtleStyle.Render("First records:") + "\n")
		for i, raw := range plan.Candidates {
			if i == planSampleSize {
				fmt.Fprintf(&b, "  … and %d more\n", len(plan.Candidates)-planSampleSize)
				break
			}
			b.WriteString("  " + sampleLine(raw) + "\n")
		}
	}

	title := MoveIcon + " Legacy transactions found"
	if plan.DryRun {
		title = MoveIcon + " Dry run, nothing will be written"
	}
	return RenderBox(title, strings.TrimRight(b.String(), "\n"))
}

func sampleLine(raw model.RawRecord) string {
	txn, err := normalize.Normalize(raw)
	if err != nil {
		return SubtleStyle.Render(fmt.Sprintf("%s (unreadable: %v)", raw.ID, err))
	}
	return fmt.Sprintf("%s  %10s  %-16s %s", txn.OccursOn, formatSigned(txn), txn.Category, txn.Description)
}

// RenderOutcome reports how a migration cycle ended.
func RenderOutcome(outcome migration.Outcome) string {
	switch outcome.Status {
	case migration.StatusCompleted:
		if outcome.Plan == nil {
			return FormatInfo("Legacy transactions were already moved.")
		}
		return RenderResult(outcome.Result)
	case migration.StatusDeclined:
		return FormatInfo("Legacy transactions stay where they are. Use 'books legacy reset' to be asked again.")
	case migration.StatusNoLegacyData:
		return FormatSuccess("No legacy transactions to move.")
	case migration.StatusFailed:
		return FormatError("Migration could not run. Nothing was marked as migrated.")
	default:
		return FormatInfo("Nothing was moved. You will be asked again next time.")
	}
}

// RenderResult summarizes a finished migration run.
func RenderResult(result model.MigrationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Moved:    %s\n", SuccessStyle.Render(fmt.Sprint(result.MigratedCount)))
	fmt.Fprintf(&b, "Skipped:  %d\n", result.SkippedCount)
	if result.ErrorCount > 0 {
		fmt.Fprintf(&b, "Failed:   %s\n", ErrorStyle.Render(fmt.Sprint(result.ErrorCount)))
		b.WriteString(SubtleStyle.Render("Failed records will be retried next time."))
	} else {
		b.WriteString(SubtleStyle.Render("Your ledger is up to date."))
	}
	return RenderBox(SuccessIcon+" Migration complete", b.String())
}

// RenderDiagnosis shows where an owner's records live.
func RenderDiagnosis(d locator.Diagnosis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Owner:             %s\n", d.OwnerID)
	fmt.Fprintf(&b, "Legacy location:   %s\n", availability(d.LegacyUnavailable, d.LegacyTotal, "documents in total"))
	fmt.Fprintf(&b, "Current location:  %s\n", availability(d.CurrentUnavailable, d.CurrentOwned, "documents"))
	fmt.Fprintf(&b, "Legacy owned:      %d", d.LegacyOwned)
	if d.OwnerField != "" {
		fmt.Fprintf(&b, " (matched on %s)", d.OwnerField)
	}
	b.WriteString("\n")
	if d.UsedFallback {
		b.WriteString(WarningStyle.Render("Owner matched through an alternate field only.") + "\n")
	}
	fmt.Fprintf(&b, "Already migrated:  %d\n", d.AlreadyMigrated)

	if len(d.LegacyFields) > 0 {
		fields := make([]string, 0, len(d.LegacyFields))
		for name := range d.LegacyFields {
			fields = append(fields, name)
		}
		sort.Strings(fields)

		b.WriteString("\n" + TableHeaderStyle.Render("Legacy field usage") + "\n")
		for _, name := range fields {
			fmt.Fprintf(&b, "  %-16s %d\n", name, d.LegacyFields[name])
		}
	}

	return RenderBox("Storage diagnosis", strings.TrimRight(b.String(), "\n"))
}

func availability(err error, count int, noun string) string {
	if err != nil {
		return ErrorStyle.Render("unavailable: " + err.Error())
	}
	return fmt.Sprintf("%d %s", count, noun)
}

// RenderMonth renders a ledger month view as a table with totals.
func RenderMonth(view ledger.View, month time.Month, year int) string {
	var b strings.Builder

	if len(view.Transactions) == 0 {
		b.WriteString(SubtleStyle.Render("No transactions this month."))
	} else {
		b.WriteString(TableHeaderStyle.Render(fmt.Sprintf("%-10s  %12s  %-16s %-5s %s", "Date", "Amount", "Category", "Paid", "Description")))
		b.WriteString("\n")
		for _, t := range view.Transactions {
			paid := ""
			if t.Kind == model.KindExpense && t.Paid {
				paid = SuccessIcon
			}
			line := fmt.Sprintf("%-10s  %12s  %-16s %-5s %s", t.OccursOn, formatSigned(t), t.Category, paid, t.Description)
			if t.Location == model.LocationLegacy {
				line += SubtleStyle.Render("  (legacy " + t.ID + ")")
			}
			b.WriteString(line + "\n")
		}
	}

	s := view.Summary
	b.WriteString("\n")
	fmt.Fprintf(&b, "Income:   %s\n", SuccessStyle.Render(s.Income.StringFixed(2)))
	fmt.Fprintf(&b, "Expenses: %s\n", ErrorStyle.Render(s.Expense.StringFixed(2)))
	fmt.Fprintf(&b, "Unpaid:   %s\n", s.Unpaid.StringFixed(2))
	fmt.Fprintf(&b, "Balance:  %s", BoldStyle.Render(s.Balance.StringFixed(2)))

	if view.Skipped > 0 {
		b.WriteString("\n" + FormatWarning(fmt.Sprintf("%d stored records could not be read", view.Skipped)))
	}
	if view.LegacyUnavailable {
		b.WriteString("\n" + FormatWarning("Legacy records are unavailable, showing current records only"))
	}

	return RenderBox(fmt.Sprintf("%s %d", month, year), b.String())
}

func formatSigned(t model.Transaction) string {
	amount := t.SignedAmount()
	if amount.GreaterThan(decimal.Zero) {
		return "+" + amount.StringFixed(2)
	}
	return amount.StringFixed(2)
}

// RenderGroups lists an owner's groups, marking the default.
func RenderGroups(groups []model.Group) string {
	if len(groups) == 0 {
		return SubtleStyle.Render("No groups yet.")
	}

	var b strings.Builder
	for _, g := range groups {
		marker := "  "
		if g.IsDefault {
			marker = SuccessIcon + " "
		}
		fmt.Fprintf(&b, "%s%-20s %s", marker, g.Name, SubtleStyle.Render(g.ID))
		if g.Description != "" {
			b.WriteString("  " + g.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderBackups lists database backups, newest first.
func RenderBackups(backups []storage.BackupInfo) string {
	if len(backups) == 0 {
		return SubtleStyle.Render("No backups found.")
	}

	var b strings.Builder
	b.WriteString(TableHeaderStyle.Render(fmt.Sprintf("%-32s %-17s %8s %8s  %s", "Name", "Created", "Legacy", "Current", "Description")))
	b.WriteString("\n")
	for _, info := range backups {
		name := info.ID
		if info.IsAuto {
			name += SubtleStyle.Render(" (auto)")
		}
		fmt.Fprintf(&b, "%-32s %-17s %8d %8d  %s\n",
			name, info.CreatedAt.Local().Format("2006-01-02 15:04"),
			info.LegacyRecords(), info.CurrentRecords(), info.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}
