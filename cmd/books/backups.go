package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-books-must-balance/internal/cli"
	"github.com/Veraticus/the-books-must-balance/internal/storage"
)

func (a *app) backupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "backups",
		Aliases: []string{"backup"},
		Short:   "Manage database backups",
		Long: `Create, list, restore, and delete database backups.

A backup is taken automatically before every migration; the most recent
automatic backups are kept.`,
		Example: `  books backups create --name before-cleanup
  books backups list
  books backups restore before-cleanup`,
	}

	cmd.AddCommand(a.backupsCreateCmd())
	cmd.AddCommand(a.backupsListCmd())
	cmd.AddCommand(a.backupsRestoreCmd())
	cmd.AddCommand(a.backupsDeleteCmd())

	return cmd
}

// withBackupManager opens the store and hands fn a backup manager for it.
func (a *app) withBackupManager(cmd *cobra.Command, fn func(*storage.SQLiteStorage, *storage.BackupManager) error) error {
	store, err := a.openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore(store)

	manager, err := store.NewBackupManager()
	if err != nil {
		return fmt.Errorf("failed to create backup manager: %w", err)
	}
	return fn(store, manager)
}

func (a *app) backupsCreateCmd() *cobra.Command {
	var name, description string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Snapshot the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackupManager(cmd, func(_ *storage.SQLiteStorage, manager *storage.BackupManager) error {
				info, err := manager.Create(cmd.Context(), name, description)
				if err != nil {
					return fmt.Errorf("failed to create backup: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(
					fmt.Sprintf("Created backup %s (%s)", info.ID, formatFileSize(info.FileSize))))
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "backup name (generated if not provided)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "description of the backup")
	return cmd
}

func (a *app) backupsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withBackupManager(cmd, func(_ *storage.SQLiteStorage, manager *storage.BackupManager) error {
				backups, err := manager.List(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list backups: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBackups(backups))
				return err
			})
		},
	}
}

func (a *app) backupsRestoreCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "restore <name>",
		Short: "Replace the database with a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackupManager(cmd, func(_ *storage.SQLiteStorage, manager *storage.BackupManager) error {
				out := cmd.OutOrStdout()
				if !force && !confirm(cmd, fmt.Sprintf("This will replace your current database with backup %s.", args[0])) {
					_, err := fmt.Fprintln(out, cli.SubtleStyle.Render("Restore cancelled."))
					return err
				}

				if err := manager.Restore(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to restore backup: %w", err)
				}
				_, err := fmt.Fprintln(out, cli.FormatSuccess("Restored from backup "+args[0]))
				return err
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation prompt")
	return cmd
}

func (a *app) backupsDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBackupManager(cmd, func(_ *storage.SQLiteStorage, manager *storage.BackupManager) error {
				out := cmd.OutOrStdout()
				if !force && !confirm(cmd, fmt.Sprintf("This will permanently delete backup %s.", args[0])) {
					_, err := fmt.Fprintln(out, cli.SubtleStyle.Render("Deletion cancelled."))
					return err
				}

				if err := manager.Delete(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("failed to delete backup: %w", err)
				}
				_, err := fmt.Fprintln(out, cli.FormatSuccess("Deleted backup "+args[0]))
				return err
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation prompt")
	return cmd
}

// confirm asks a yes/no question on the command's input. Anything but an
// answer starting with y is a no.
func confirm(cmd *cobra.Command, warning string) bool {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "%s\n%s ", cli.FormatWarning(warning), cli.FormatPrompt("Continue? (y/N)"))

	answer, err := cli.NewNonBlockingReader(cmd.InOrStdin()).ReadLine(cmd.Context())
	if err != nil {
		return false
	}
	return strings.HasPrefix(strings.ToLower(answer), "y")
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
