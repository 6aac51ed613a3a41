package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-books-must-balance/internal/cli"
	"github.com/Veraticus/the-books-must-balance/internal/migration"
)

func (a *app) migrateCmd() *cobra.Command {
	var (
		assumeYes bool
		noBackup  bool
		groupID   string
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Move legacy transactions into your current ledger",
		Long: `Look for transactions still in the legacy location, show what would be
moved, and ask before moving anything.

Records already migrated are never copied twice. Records that cannot be read
are skipped and reported. Once moving starts it always runs to the end.`,
		Example: `  # Review and confirm interactively
  books migrate --owner alice

  # Migrate without prompting, filing unassigned records under a group
  books migrate --owner alice --yes --group household`,
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

			out := cmd.OutOrStdout()
			progress := cli.NewProgressReporter(cmd.ErrOrStderr(), "Moving legacy transactions...")
			orch := a.newOrchestrator(store, progress)

			var consent migration.ConsentFunc
			if assumeYes {
				consent = cli.AutoConsent(migration.DecisionProceed)
			} else {
				consent = cli.NewConsentPrompter(cmd.InOrStdin(), out).Ask
			}
			if !noBackup {
				consent = withBackup(consent, store)
			}

			ctx := cli.NewInterruptHandler(out).HandleInterrupts(cmd.Context(),
				"Nothing was moved. You will be asked again next time.")

			outcome, err := orch.Run(ctx, owner, groupID, consent)
			progress.Finish()

			if _, werr := fmt.Fprintln(out, cli.RenderOutcome(outcome)); werr != nil {
				return werr
			}
			if err != nil && !isNonDecision(err) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "migrate without asking")
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "skip the database backup taken before migrating")
	cmd.Flags().StringVar(&groupID, "group", "", "group for records that have none (default: your default group)")

	return cmd
}
