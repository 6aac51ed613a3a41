package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-books-must-balance/internal/cli"
	"github.com/Veraticus/the-books-must-balance/internal/ledger"
	"github.com/Veraticus/the-books-must-balance/internal/ofx"
)

func (a *app) txImportCmd() *cobra.Command {
	var (
		category string
		groupID  string
		unpaid   bool
		dryRun   bool
	)

	cmd := &cobra.Command{
		Use:   "import <files...>",
		Short: "Import transactions from OFX/QFX bank statements",
		Long: `Import transactions from OFX or QFX files exported from your bank.

Lines already recorded (same description, amount and date) are skipped, so
importing overlapping statements is safe.`,
		Example: `  books tx import ~/Downloads/checking_2024_03.qfx --owner alice
  books tx import ~/Downloads/*.ofx --owner alice --category Household`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := a.owner()
			if err != nil {
				return err
			}

			files, err := expandPatterns(args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			inputs := make([]ledger.Input, 0)
			seen := make(map[string]bool)

			for _, path := range files {
				entries, err := readStatement(path)
				if err != nil {
					slog.Error("Failed to read statement", "file", path, "error", err)
					fmt.Fprintln(out, cli.FormatError(fmt.Sprintf("%s: %v", filepath.Base(path), err)))
					continue
				}

				added := 0
				for _, e := range entries {
					key := e.AccountID + "/" + e.FITID
					if e.FITID != "" && seen[key] {
						continue
					}
					seen[key] = true
					added++
					inputs = append(inputs, toInput(e, category, groupID, !unpaid))
				}
				fmt.Fprintf(out, "  %s %s: %d transactions\n", cli.InfoIcon, filepath.Base(path), added)
			}

			if len(inputs) == 0 {
				_, err := fmt.Fprintln(out, cli.FormatWarning("No transactions found to import"))
				return err
			}
			if dryRun {
				_, err := fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Dry run: %d transactions would be imported", len(inputs))))
				return err
			}

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(store)

			result, err := ledger.New(store).Import(cmd.Context(), owner, inputs)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf(
				"Imported %d transactions (%d already recorded, %d unusable)",
				result.Added, result.Duplicates, result.Invalid)))
			return err
		},
	}

	cmd.Flags().StringVar(&category, "category", "Uncategorized", "category for lines whose type implies none")
	cmd.Flags().StringVar(&groupID, "group", "", "group id for every imported transaction")
	cmd.Flags().BoolVar(&unpaid, "unpaid", false, "record imported expenses as unpaid")
	cmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "parse the files without saving anything")

	return cmd
}

// expandPatterns resolves shell-style globs, keeping plain paths that match
// nothing as-is so a missing file is reported by name.
func expandPatterns(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) == 0 {
			files = append(files, pattern)
			continue
		}
		files = append(files, matches...)
	}
	return files, nil
}

func readStatement(path string) ([]ofx.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stmt, err := ofx.Parse(f)
	if err != nil {
		return nil, err
	}
	return stmt.Entries, nil
}

func toInput(e ofx.Entry, fallbackCategory, groupID string, paid bool) ledger.Input {
	category := e.Category
	if category == "" {
		category = fallbackCategory
	}
	return ledger.Input{
		OccursOn:    e.OccursOn,
		Amount:      e.Amount,
		Kind:        e.Kind,
		Category:    category,
		Description: e.Description,
		GroupID:     groupID,
		Paid:        paid,
	}
}
