package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-books-must-balance/internal/cli"
	"github.com/Veraticus/the-books-must-balance/internal/migration"
	"github.com/Veraticus/the-books-must-balance/internal/model"
)

func (a *app) legacyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "legacy",
		Short: "Inspect and manage legacy transactions",
		Long: `Commands for the legacy flat collection: check what is left to migrate,
preview a migration, decline or reset the decision, and import exports.`,
		Example: `  # See whether anything is waiting to be migrated
  books legacy check --owner alice

  # Preview without touching anything
  books legacy dry-run --owner alice

  # Load an export of the old collection
  books legacy import export.json`,
	}

	cmd.AddCommand(a.legacyCheckCmd())
	cmd.AddCommand(a.legacyDryRunCmd())
	cmd.AddCommand(a.legacyDeclineCmd())
	cmd.AddCommand(a.legacyStatusCmd())
	cmd.AddCommand(a.legacyResetCmd())
	cmd.AddCommand(a.legacyImportCmd())
	cmd.AddCommand(a.legacyOwnersCmd())

	return cmd
}

func (a *app) legacyCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check for legacy transactions waiting to be migrated",
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := a.owner()
			if err != nil {
				return err
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(store)

			orch := a.newOrchestrator(store, nil)
			plan, err := orch.CheckForLegacyData(cmd.Context(), owner)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if plan == nil {
				_, err = fmt.Fprintln(out, cli.RenderOutcome(migration.Outcome{Status: orch.Status(owner)}))
				return err
			}
			orch.Abandon(owner)

			_, err = fmt.Fprintf(out, "%s\n%s\n", cli.RenderPlan(plan), cli.FormatInfo("Run 'books migrate' to move them."))
			return err
		},
	}
}

func (a *app) legacyDryRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dry-run",
		Short: "Preview a migration without writing anything",
		Long:  `Compute what a migration would do, ignoring any earlier decision. Nothing is written.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := a.owner()
			if err != nil {
				return err
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(store)

			plan, err := a.newOrchestrator(store, nil).DryRun(cmd.Context(), owner)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.RenderPlan(plan))
			return err
		},
	}
}

func (a *app) legacyDeclineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decline",
		Short: "Keep legacy transactions where they are and stop asking",
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := a.owner()
			if err != nil {
				return err
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(store)

			orch := a.newOrchestrator(store, nil)
			plan, err := orch.CheckForLegacyData(cmd.Context(), owner)
			if err != nil {
				return err
			}
			if plan != nil {
				if err := orch.DeclineMigration(cmd.Context(), owner); err != nil {
					return err
				}
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.RenderOutcome(migration.Outcome{Status: orch.Status(owner)}))
			return err
		},
	}
}

func (a *app) legacyStatusCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the recorded migration decision",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(store)

			out := cmd.OutOrStdout()
			if all {
				flags, err := store.ListFlags(cmd.Context(), model.FlagKey(""))
				if err != nil {
					return err
				}
				if len(flags) == 0 {
					_, err = fmt.Fprintln(out, cli.SubtleStyle.Render("No decisions recorded."))
					return err
				}
				for _, f := range flags {
					owner := strings.TrimPrefix(f.Key, model.FlagKey(""))
					if _, err := fmt.Fprintf(out, "%-24s %s\n", owner, describeFlag(f.Value, true)); err != nil {
						return err
					}
				}
				return nil
			}

			owner, err := a.owner()
			if err != nil {
				return err
			}
			value, found, err := store.ReadFlag(cmd.Context(), model.FlagKey(owner))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, describeFlag(value, found))
			return err
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "list the decision of every owner")
	return cmd
}

func describeFlag(value string, found bool) string {
	switch {
	case !found:
		return "not decided"
	case value == model.FlagMigrated:
		return "migrated"
	case value == model.FlagSkipped:
		return "declined"
	default:
		return fmt.Sprintf("unrecognized (%q)", value)
	}
}

func (a *app) legacyResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the migration decision so you are asked again",
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := a.owner()
			if err != nil {
				return err
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(store)

			if err := a.newOrchestrator(store, nil).ResetStatus(cmd.Context(), owner); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Migration decision cleared for "+owner))
			return err
		},
	}
}

func (a *app) legacyImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Load a JSON export of the legacy collection",
		Long: `Load documents into the legacy location from a JSON array. Each document's
"id" becomes its id; documents whose id already exists are left alone.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := readLegacyExport(args[0])
			if err != nil {
				return err
			}

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(store)

			imported, err := store.ImportLegacy(cmd.Context(), docs)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(
				fmt.Sprintf("Imported %d of %d legacy documents", imported, len(docs))))
			return err
		},
	}
}

func readLegacyExport(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := json.NewDecoder(f)
	dec.UseNumber()

	var docs []map[string]any
	if err := dec.Decode(&docs); err != nil {
		return nil, fmt.Errorf("failed to parse export %s: %w", path, err)
	}
	return docs, nil
}

func (a *app) legacyOwnersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "owners",
		Short: "List every owner found in the legacy location",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(store)

			owners, err := store.LegacyOwners(cmd.Context())
			if err != nil {
				return err
			}
			for _, owner := range owners {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), owner); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
