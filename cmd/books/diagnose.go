package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-books-must-balance/internal/cli"
	"github.com/Veraticus/the-books-must-balance/internal/locator"
)

func (a *app) diagnoseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Show where your transactions are stored",
		Long: `Report which locations can be read, how many of your records each holds,
which owner field matched your legacy records, and which fields those
records carry. Nothing is written.`,
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

			loc := locator.NewWithConfig(store, locator.Config{Retry: a.cfg.Retry})
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.RenderDiagnosis(loc.Inspect(cmd.Context(), owner)))
			return err
		},
	}
}
