package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-books-must-balance/internal/cli"
	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/model"
)

func (a *app) groupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Manage the groups transactions are filed under",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List your groups",
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

			groups, err := store.ListGroups(cmd.Context(), owner)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.RenderGroups(groups))
			return err
		},
	})

	cmd.AddCommand(a.groupsAddCmd())
	cmd.AddCommand(a.groupsEditCmd())
	cmd.AddCommand(a.groupsDefaultCmd())
	cmd.AddCommand(a.groupsDeleteCmd())
	return cmd
}

func (a *app) groupsAddCmd() *cobra.Command {
	var (
		id          string
		description string
		color       string
		isDefault   bool
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a group",
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

			group := &model.Group{
				ID:          id,
				OwnerID:     owner,
				Name:        args[0],
				Description: description,
				Color:       color,
				IsDefault:   isDefault,
			}
			if err := store.CreateGroup(cmd.Context(), group); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created group %s (%s)", group.Name, group.ID)))
			return err
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "group id (generated if not provided)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "description")
	cmd.Flags().StringVar(&color, "color", "", "display color")
	cmd.Flags().BoolVar(&isDefault, "default", false, "make this the default group for migrated records")

	return cmd
}

func (a *app) groupsEditCmd() *cobra.Command {
	var (
		name        string
		description string
		color       string
	)

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Rename or restyle a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("name") && !flags.Changed("description") && !flags.Changed("color") {
				return common.NewUserError("nothing to change, pass --name, --description or --color", common.ErrInvalidState)
			}

			owner, err := a.owner()
			if err != nil {
				return err
			}
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(store)

			group, err := store.GetGroup(cmd.Context(), owner, args[0])
			if err != nil {
				return err
			}
			if flags.Changed("name") {
				group.Name = name
			}
			if flags.Changed("description") {
				group.Description = description
			}
			if flags.Changed("color") {
				group.Color = color
			}
			if err := store.UpdateGroup(cmd.Context(), group); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Updated group %s (%s)", group.Name, group.ID)))
			return err
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVarP(&description, "description", "d", "", "new description")
	cmd.Flags().StringVar(&color, "color", "", "new display color")

	return cmd
}

func (a *app) groupsDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "default <id>",
		Short: "Make a group the default for migrated records",
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

			if err := store.SetDefaultGroup(cmd.Context(), owner, args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("%s is now the default group", args[0])))
			return err
		},
	}
}

func (a *app) groupsDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a group",
		Long: `Delete a group. Transactions filed under it keep their group id and
still show up when listing every group. Your last group cannot be deleted.`,
		Args: cobra.ExactArgs(1),
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

			group, err := store.GetGroup(cmd.Context(), owner, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !force && !confirm(cmd, fmt.Sprintf("Delete group %s (%s)?", group.Name, group.ID)) {
				_, err := fmt.Fprintln(out, cli.FormatInfo("Deletion cancelled"))
				return err
			}

			if err := store.DeleteGroup(cmd.Context(), owner, group.ID); err != nil {
				if errors.Is(err, common.ErrInvalidState) {
					return common.NewUserError("cannot delete your only group", err)
				}
				return err
			}
			_, err = fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Deleted group %s", group.Name)))
			return err
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip the confirmation prompt")
	return cmd
}
