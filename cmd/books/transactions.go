package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/Veraticus/the-books-must-balance/internal/cli"
	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/ledger"
	"github.com/Veraticus/the-books-must-balance/internal/model"
	"github.com/Veraticus/the-books-must-balance/internal/normalize"
)

func (a *app) transactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"tx"},
		Short:   "List and edit your transactions",
		Long: `List a month of transactions from both locations, record new ones, and
edit existing ones. Records still in the legacy location are edited in place
with --legacy.`,
		Example: `  books tx list --owner alice --month 3 --year 2024
  books tx add --owner alice --amount 42.10 --kind expense --category Food
  books tx pay 7f1c... --owner alice
  books tx edit 7f1c... --owner alice --amount 40.00 --description "split bill"
  books tx import statement.qfx --owner alice`,
	}

	cmd.AddCommand(a.txListCmd())
	cmd.AddCommand(a.txAddCmd())
	cmd.AddCommand(a.txPayCmd())
	cmd.AddCommand(a.txEditCmd())
	cmd.AddCommand(a.txMoveCmd())
	cmd.AddCommand(a.txDeleteCmd())
	cmd.AddCommand(a.txImportCmd())

	return cmd
}

func (a *app) txListCmd() *cobra.Command {
	var (
		month   int
		year    int
		groupID string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show one month of transactions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := a.owner()
			if err != nil {
				return err
			}

			now := time.Now()
			if month == 0 {
				month = int(now.Month())
			}
			if year == 0 {
				year = now.Year()
			}
			if month < 1 || month > 12 {
				return common.NewUserError("month must be between 1 and 12", ledger.ErrInvalidInput)
			}

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(store)

			view, err := ledger.New(store).MonthView(cmd.Context(), owner, groupID, time.Month(month), year)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.RenderMonth(view, time.Month(month), year))
			return err
		},
	}

	cmd.Flags().IntVar(&month, "month", 0, "month number (default: current month)")
	cmd.Flags().IntVar(&year, "year", 0, "year (default: current year)")
	cmd.Flags().StringVar(&groupID, "group", "", "only show this group")

	return cmd
}

func (a *app) txAddCmd() *cobra.Command {
	var (
		amount      string
		kind        string
		category    string
		date        string
		description string
		groupID     string
		paid        bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a new transaction",
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := a.owner()
			if err != nil {
				return err
			}

			value, err := decimal.NewFromString(amount)
			if err != nil {
				return common.NewUserError(fmt.Sprintf("amount %q is not a number", amount), ledger.ErrInvalidInput)
			}
			k, ok := normalize.ParseKind(kind)
			if !ok {
				return common.NewUserError(fmt.Sprintf("kind %q must be income or expense", kind), ledger.ErrInvalidInput)
			}
			occursOn := model.DateOf(time.Now())
			if date != "" {
				if occursOn, err = model.ParseDate(date); err != nil {
					return common.NewUserError(fmt.Sprintf("date %q must look like 2024-03-10", date), ledger.ErrInvalidInput)
				}
			}

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(store)

			txn, err := ledger.New(store).AddTransaction(cmd.Context(), owner, ledger.Input{
				OccursOn:    occursOn,
				Amount:      value,
				Kind:        k,
				Category:    category,
				Description: description,
				GroupID:     groupID,
				Paid:        paid,
			})
			if err != nil {
				return err
			}

			msg := fmt.Sprintf("Recorded %s %s on %s (%s)", txn.Kind, txn.Amount.StringFixed(2), txn.OccursOn, txn.ID)
			if txn.Location == model.LocationLegacy {
				msg += "\n" + cli.FormatWarning("Saved to the legacy location; it will be moved on the next migration.")
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(msg))
			return err
		},
	}

	cmd.Flags().StringVar(&amount, "amount", "", "amount, always positive")
	cmd.Flags().StringVar(&kind, "kind", "expense", "income or expense")
	cmd.Flags().StringVar(&category, "category", "", "category name")
	cmd.Flags().StringVar(&date, "date", "", "date as YYYY-MM-DD (default: today)")
	cmd.Flags().StringVar(&description, "description", "", "free-form description")
	cmd.Flags().StringVar(&groupID, "group", "", "group id")
	cmd.Flags().BoolVar(&paid, "paid", false, "mark the expense as already paid")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func (a *app) txPayCmd() *cobra.Command {
	var unpaid, legacy bool

	cmd := &cobra.Command{
		Use:   "pay <id>",
		Short: "Mark an expense as paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := a.owner()
			if err != nil {
				return err
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(store)

			if err := ledger.New(store).SetPaid(cmd.Context(), owner, parseLocation(legacy), args[0], !unpaid); err != nil {
				return err
			}
			state := "paid"
			if unpaid {
				state = "unpaid"
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Marked %s as %s", args[0], state)))
			return err
		},
	}

	cmd.Flags().BoolVar(&unpaid, "unpaid", false, "mark as unpaid instead")
	cmd.Flags().BoolVar(&legacy, "legacy", false, "the transaction is still in the legacy location")
	return cmd
}

func (a *app) txEditCmd() *cobra.Command {
	var (
		amount      string
		kind        string
		category    string
		date        string
		description string
		groupID     string
		paid        bool
		legacy      bool
	)

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of an existing transaction",
		Long: `Change one or more fields of a transaction. Only the flags you pass are
written; everything else keeps its current value.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := a.owner()
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			var changes ledger.Changes
			if flags.Changed("amount") {
				value, err := decimal.NewFromString(amount)
				if err != nil {
					return common.NewUserError(fmt.Sprintf("amount %q is not a number", amount), ledger.ErrInvalidInput)
				}
				changes.Amount = &value
			}
			if flags.Changed("kind") {
				k, ok := normalize.ParseKind(kind)
				if !ok {
					return common.NewUserError(fmt.Sprintf("kind %q must be income or expense", kind), ledger.ErrInvalidInput)
				}
				changes.Kind = &k
			}
			if flags.Changed("date") {
				d, err := model.ParseDate(date)
				if err != nil {
					return common.NewUserError(fmt.Sprintf("date %q must look like 2024-03-10", date), ledger.ErrInvalidInput)
				}
				changes.OccursOn = &d
			}
			if flags.Changed("category") {
				changes.Category = &category
			}
			if flags.Changed("description") {
				changes.Description = &description
			}
			if flags.Changed("group") {
				changes.GroupID = &groupID
			}
			if flags.Changed("paid") {
				changes.Paid = &paid
			}
			if changes.IsEmpty() {
				return common.NewUserError("nothing to change, pass at least one field flag", ledger.ErrInvalidInput)
			}

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(store)

			if changes.GroupID != nil {
				if _, err := store.GetGroup(cmd.Context(), owner, groupID); err != nil {
					return common.NewUserError(fmt.Sprintf("group %q does not exist", groupID), err)
				}
			}

			if err := ledger.New(store).UpdateTransaction(cmd.Context(), owner, parseLocation(legacy), args[0], changes); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Updated "+args[0]))
			return err
		},
	}

	cmd.Flags().StringVar(&amount, "amount", "", "new amount, always positive")
	cmd.Flags().StringVar(&kind, "kind", "", "income or expense")
	cmd.Flags().StringVar(&category, "category", "", "new category name")
	cmd.Flags().StringVar(&date, "date", "", "new date as YYYY-MM-DD")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&groupID, "group", "", "file under this group")
	cmd.Flags().BoolVar(&paid, "paid", false, "paid state, use --paid=false to clear it")
	cmd.Flags().BoolVar(&legacy, "legacy", false, "the transaction is still in the legacy location")

	return cmd
}

func (a *app) txMoveCmd() *cobra.Command {
	var legacy bool

	cmd := &cobra.Command{
		Use:   "move <id> <group>",
		Short: "File a transaction under another group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := a.owner()
			if err != nil {
				return err
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(store)

			if err := ledger.New(store).MoveToGroup(cmd.Context(), owner, parseLocation(legacy), args[0], args[1]); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Moved %s to %s", args[0], args[1])))
			return err
		},
	}

	cmd.Flags().BoolVar(&legacy, "legacy", false, "the transaction is still in the legacy location")
	return cmd
}

func (a *app) txDeleteCmd() *cobra.Command {
	var legacy bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := a.owner()
			if err != nil {
				return err
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(store)

			if err := ledger.New(store).DeleteTransaction(cmd.Context(), owner, parseLocation(legacy), args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted "+args[0]))
			return err
		},
	}

	cmd.Flags().BoolVar(&legacy, "legacy", false, "the transaction is still in the legacy location")
	return cmd
}
