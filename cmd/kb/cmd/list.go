package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/localkb/knowledgebase/internal/kb"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List indexed documents, most recently updated first",
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

			rows, err := svc.List()
			if err != nil {
				return err
			}

			if jsonOutput {
				type listEntry struct {
					ID         string   `json:"id"`
					Title      string   `json:"title"`
					FolderPath string   `json:"folder_path"`
					Tags       []string `json:"tags"`
					UpdatedAt  string   `json:"updated_at"`
				}
				entries := make([]listEntry, 0, len(rows))
				for _, r := range rows {
					entries = append(entries, listEntry{
						ID: r.ID, Title: r.Title, FolderPath: r.FolderPath,
						Tags: r.Tags, UpdatedAt: r.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
					})
				}
				return writeJSON(cmd.OutOrStdout(), entries)
			}

			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No documents indexed. Run 'kb reindex'.")
				return nil
			}

			out := make([][]string, 0, len(rows))
			for _, r := range rows {
				folder := r.FolderPath
				if folder == "" {
					folder = "(root)"
				}
				out = append(out, []string{
					truncate(r.ID, 12),
					truncate(r.Title, 40),
					folder,
					strings.Join(r.Tags, ","),
					r.UpdatedAt.Format("2006-01-02"),
				})
			}
			table(cmd.OutOrStdout(), []string{"ID", "TITLE", "FOLDER", "TAGS", "UPDATED"}, out)
			return nil
		},
	}
}
