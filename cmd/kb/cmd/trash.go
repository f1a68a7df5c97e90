package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localkb/knowledgebase/internal/kb"
	"github.com/localkb/knowledgebase/internal/trash"
)

func newTrashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trash",
		Short: "Manage trashed documents",
	}
	cmd.AddCommand(
		newTrashListCmd(),
		newTrashRestoreCmd(),
		newTrashPurgeCmd(),
		newTrashClearCmd(),
		newDeleteCmd(),
	)
	return cmd
}

// newDeleteCmd is registered under trash as "trash put" is not a verb the
// surface defines; deleting a document is what fills the trash.
func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <id>",
		Short: "Move a document into the trash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, root, err := loadConfig()
			if err != nil {
				return err
			}
			svc, err := kb.NewService(root, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.DeleteDocument(cmd.Context(), args[0]); err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"trashed": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Trashed %s\n", args[0])
			return nil
		},
	}
}

func newTrashListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List trashed documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, root, err := loadConfig()
			if err != nil {
				return err
			}
			items, err := trash.New(root).List()
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), items)
			}

			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Trash is empty.")
				return nil
			}
			rows := make([][]string, 0, len(items))
			for _, item := range items {
				rows = append(rows, []string{
					item.TrashPath,
					item.DeletedAt.Format("2006-01-02 15:04"),
					fmt.Sprintf("%d", item.SizeBytes),
				})
			}
			table(cmd.OutOrStdout(), []string{"PATH", "DELETED", "BYTES"}, rows)
			return nil
		},
	}
}

func newTrashRestoreCmd() *cobra.Command {
	var withSuffix bool

	cmd := &cobra.Command{
		Use:   "restore <trash-path>",
		Short: "Restore a trashed document to its original location",
		Long: `Restores a trashed file. By default a conflict at the original location
fails; with --suffix the first free " (N)" name is used instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, root, err := loadConfig()
			if err != nil {
				return err
			}

			strategy := trash.OriginalLocation
			if withSuffix {
				strategy = trash.WithSuffix
			}
			restored, err := trash.New(root).Restore(args[0], strategy)
			if err != nil {
				return err
			}

			// The restored file is new to the cache; repair the mirror.
			svc, serr := kb.NewService(root, cfg)
			if serr == nil {
				defer svc.Close()
				_, _ = svc.Reindex(cmd.Context(), "", nil)
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"restored_to": restored})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored to %s\n", restored)
			return nil
		},
	}

	cmd.Flags().BoolVar(&withSuffix, "suffix", false, "On conflict, restore under the first free \" (N)\" name")
	return cmd
}

func newTrashPurgeCmd() *cobra.Command {
	var expired bool

	cmd := &cobra.Command{
		Use:   "purge [trash-path]",
		Short: "Permanently remove one trashed file, or everything expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, root, err := loadConfig()
			if err != nil {
				return err
			}
			mgr := trash.New(root)

			if expired {
				removed, err := mgr.AutoCleanup()
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd.OutOrStdout(), map[string]int{"removed": removed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired items\n", removed)
				return nil
			}

			if len(args) != 1 {
				return fmt.Errorf("a trash path is required unless --expired is given")
			}
			if err := mgr.Purge(args[0]); err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"purged": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&expired, "expired", false, "Remove everything older than the retention period")
	return cmd
}

func newTrashClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Permanently remove everything in the trash",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, root, err := loadConfig()
			if err != nil {
				return err
			}
			if err := trash.New(root).Clear(); err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]bool{"cleared": true})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Trash cleared.")
			return nil
		},
	}
}
