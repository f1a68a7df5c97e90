package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localkb/knowledgebase/internal/kb"
)

func newReindexCmd() *cobra.Command {
	var folder string

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the sidecar cache and sync embeddings",
		Long: `Rebuilds the sidecar cache from the markdown tree, then syncs document
and chunk embeddings. Unchanged documents are detected by content hash
and skipped without any inference.

With --folder, only that subtree is re-read; cache rows outside it are
preserved.`,
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

			ctx := cmd.Context()

			if stdoutIsTTY() && !jsonOutput {
				result, err := runReindexTUI(ctx, svc, folder)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d documents (%d embeddings synced, %d failed)\n",
					result.DocumentsIndexed, result.EmbeddingsSynced, result.EmbeddingsFailed)
				return nil
			}

			result, err := svc.Reindex(ctx, folder, nil)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d documents (%d embeddings synced, %d failed)\n",
				result.DocumentsIndexed, result.EmbeddingsSynced, result.EmbeddingsFailed)
			return nil
		},
	}

	cmd.Flags().StringVar(&folder, "folder", "", "Restrict the reindex to one folder subtree")
	return cmd
}
