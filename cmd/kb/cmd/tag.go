package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/localkb/knowledgebase/internal/docstore"
	"github.com/localkb/knowledgebase/internal/kb"
)

func newTagCmd() *cobra.Command {
	var remove, replace bool

	cmd := &cobra.Command{
		Use:   "tag <id> <tags...>",
		Short: "Add, remove, or replace a document's tags",
		Long: `Mutates a document's tag list. The default mode appends new tags,
preserving existing order; --remove drops the named tags
(case-insensitively, by normalized form); --replace substitutes the
whole list.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if remove && replace {
				return fmt.Errorf("--remove and --replace are mutually exclusive")
			}

			mode := docstore.TagAdd
			if remove {
				mode = docstore.TagRemove
			} else if replace {
				mode = docstore.TagReplace
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

			doc, err := svc.UpdateTags(cmd.Context(), args[0], args[1:], mode)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{
					"id":   doc.ID,
					"tags": doc.Tags,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", doc.ID, strings.Join(doc.Tags, ", "))
			return nil
		},
	}

	cmd.Flags().BoolVar(&remove, "remove", false, "Remove the named tags")
	cmd.Flags().BoolVar(&replace, "replace", false, "Replace the tag list")
	return cmd
}
