package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/localkb/knowledgebase/internal/docstore"
	"github.com/localkb/knowledgebase/internal/kb"
)

func newCreateCmd() *cobra.Command {
	var folder, title string
	var tags []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new document (body from stdin)",
		Long: `Creates a markdown document with frontmatter. The body is read from
stdin; the title becomes the filename, with a " (N)" suffix on collision.

Example:
  echo "Hybrid search blends lexical and semantic." | \
    kb create --title "Search Brief" --folder projects/alpha --tags search,alpha`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if title == "" {
				return fmt.Errorf("--title is required")
			}

			body, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read body from stdin: %w", err)
			}

			cfg, root, err := loadConfig()
			if err != nil {
				return err
			}
			svc, err := kb.NewService(root, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			doc, err := svc.CreateDocument(cmd.Context(), docstore.CreateInput{
				Title:      title,
				Body:       string(body),
				FolderPath: folder,
				Tags:       tags,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"id":          doc.ID,
					"title":       doc.Title,
					"folder_path": doc.FolderPath,
					"tags":        doc.Tags,
					"path":        doc.Path,
					// Auto-tagging is an external collaborator; creation
					// never applies tags beyond those given.
					"applied_tags":   []string{},
					"skipped_reason": "disabled",
				})
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s)\n", doc.Title, doc.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Document title (required)")
	cmd.Flags().StringVar(&folder, "folder", "", "Destination folder path")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Initial tags")
	return cmd
}
