package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/localkb/knowledgebase/internal/kb"
)

func newReadCmd() *cobra.Command {
	var metadataOnly bool

	cmd := &cobra.Command{
		Use:   "read <id>",
		Short: "Print a document by id or unique id prefix",
		Long: `Resolves the id with prefix-unique lookup: an exact frontmatter id wins;
otherwise a prefix matching exactly one document resolves to it, and a
prefix matching several fails as ambiguous.`,
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

			doc, err := svc.ReadDocument(args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				payload := map[string]interface{}{
					"id":          doc.ID,
					"title":       doc.Title,
					"folder_path": doc.FolderPath,
					"tags":        doc.Tags,
					"tags_locked": doc.TagsLocked,
					"created_at":  doc.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
					"updated_at":  doc.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
				}
				if !metadataOnly {
					payload["body"] = doc.Body
				}
				return writeJSON(cmd.OutOrStdout(), payload)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:     %s\n", doc.ID)
			fmt.Fprintf(out, "title:  %s\n", doc.Title)
			fmt.Fprintf(out, "folder: %s\n", doc.FolderPath)
			fmt.Fprintf(out, "tags:   %s\n", strings.Join(doc.Tags, ", "))
			fmt.Fprintf(out, "updated: %s\n", doc.UpdatedAt.Format("2006-01-02 15:04:05"))
			if !metadataOnly {
				fmt.Fprintln(out)
				fmt.Fprintln(out, doc.Body)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&metadataOnly, "metadata", false, "Print metadata only, not the body")
	return cmd
}
