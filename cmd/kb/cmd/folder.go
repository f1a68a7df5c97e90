package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localkb/knowledgebase/internal/docstore"
	"github.com/localkb/knowledgebase/internal/folders"
	"github.com/localkb/knowledgebase/internal/kb"
)

func newFolderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folder",
		Short: "Manage folders in the documents tree",
	}
	cmd.AddCommand(
		newFolderListCmd(),
		newFolderCreateCmd(),
		newFolderRenameCmd(),
		newFolderDeleteCmd(),
		newFolderMoveCmd(),
	)
	return cmd
}

func newFolderListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List folders with document and subfolder counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, root, err := loadConfig()
			if err != nil {
				return err
			}

			list, err := folders.New(root).List()
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), list)
			}

			rows := make([][]string, 0, len(list))
			for _, f := range list {
				name := f.Path
				if name == "" {
					name = "(root)"
				}
				rows = append(rows, []string{name, fmt.Sprintf("%d", f.DocumentCount), fmt.Sprintf("%d", f.SubfolderCount)})
			}
			table(cmd.OutOrStdout(), []string{"FOLDER", "DOCS", "SUBFOLDERS"}, rows)
			return nil
		},
	}
}

func newFolderCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <path>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, root, err := loadConfig()
			if err != nil {
				return err
			}
			if err := folders.New(root).Create(args[0]); err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"created": args[0]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created folder %s\n", args[0])
			return nil
		},
	}
}

func newFolderRenameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Rename or move a folder subtree",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, root, err := loadConfig()
			if err != nil {
				return err
			}
			if err := folders.New(root).Rename(args[0], args[1]); err != nil {
				return err
			}

			// The rename moved files out from under their cache rows;
			// a scoped reindex repairs the mirror.
			svc, err := kb.NewService(root, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()
			if _, rerr := svc.Reindex(cmd.Context(), "", nil); rerr != nil {
				return rerr
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"from": args[0], "to": args[1]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s -> %s\n", args[0], args[1])
			return nil
		},
	}
}

func newFolderDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <path>",
		Short: "Delete a folder",
		Long: `Deletes a folder. Without --force, a non-empty folder is refused. With
--force, the folder's documents move to 'inbox' first, then the subtree
(minus any trash) is removed.`,
		Args: cobra.ExactArgs(1),
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

			if force {
				// Relocate documents before removing the subtree.
				norm, nerr := docstore.NormalizeFolderPath(args[0])
				if nerr != nil {
					return nerr
				}
				paths, perr := svc.Docs().MarkdownPaths(norm)
				if perr != nil {
					return perr
				}
				for _, p := range paths {
					doc, _, rerr := svc.Docs().ReadPath(p)
					if rerr != nil {
						continue
					}
					if _, merr := svc.MoveDocument(cmd.Context(), doc.ID, "inbox"); merr != nil {
						return merr
					}
				}
			}

			if err := folders.New(root).Delete(args[0], force); err != nil {
				return err
			}
			if _, rerr := svc.Reindex(cmd.Context(), "", nil); rerr != nil {
				return rerr
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"deleted": args[0], "force": force})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted folder %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Delete even if non-empty, moving documents to 'inbox'")
	return cmd
}

func newFolderMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <folder>",
		Short: "Move a document into another folder",
		Args:  cobra.ExactArgs(2),
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

			doc, err := svc.MoveDocument(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"id": doc.ID, "folder_path": doc.FolderPath})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Moved %s to %s\n", doc.ID, doc.FolderPath)
			return nil
		},
	}
}
