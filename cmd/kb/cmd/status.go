package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/localkb/knowledgebase/internal/kb"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize the index without triggering any indexing",
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

			st, err := svc.Status()
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), st)
			}

			total := 0
			folders := make([]string, 0, len(st.DocumentCountByFolder))
			for folder, n := range st.DocumentCountByFolder {
				total += n
				folders = append(folders, folder)
			}
			sort.Strings(folders)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Documents:   %d across %d folders\n", total, st.FolderCount)
			fmt.Fprintf(out, "Unique tags: %d\n", st.UniqueTagCount)
			if !st.LastIndexedAt.IsZero() {
				fmt.Fprintf(out, "Last indexed: %s\n", st.LastIndexedAt.Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(out, "Last indexed: never (run 'kb reindex')")
			}
			fmt.Fprintf(out, "Sidecar size: %d bytes\n", st.SidecarSizeBytes)

			if len(folders) > 0 {
				rows := make([][]string, 0, len(folders))
				for _, folder := range folders {
					name := folder
					if name == "" {
						name = "(root)"
					}
					rows = append(rows, []string{name, fmt.Sprintf("%d", st.DocumentCountByFolder[folder])})
				}
				fmt.Fprintln(out)
				table(out, []string{"FOLDER", "DOCS"}, rows)
			}
			return nil
		},
	}
}
