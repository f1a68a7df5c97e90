package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/localkb/knowledgebase/internal/cache"
	"github.com/localkb/knowledgebase/internal/docstore"
	"github.com/localkb/knowledgebase/internal/kb"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit    int
	folder   string
	tags     []string
	minScore float64
	bm25Only bool
	snippets bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search documents with hybrid BM25 + semantic scoring",
		Long: `Searches the indexed documents, blending lexical BM25 and semantic
cosine similarity into one score.

Examples:
  kb search "quarterly planning"
  kb search "onnx runtime" --folder projects --limit 5
  kb search "retro notes" --tags retro,team --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			cfg, root, err := loadConfig()
			if err != nil {
				return err
			}
			svc, err := kb.NewService(root, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			searchOpts := kb.SearchOptions{
				Limit:        opts.limit,
				MinScore:     opts.minScore,
				FolderFilter: opts.folder,
			}
			if opts.bm25Only {
				zero, one := 0.0, 1.0
				searchOpts.SemanticWeight = &zero
				searchOpts.BM25Weight = &one
			} else {
				searchOpts.SemanticWeight = &cfg.Search.SemanticWeight
				searchOpts.BM25Weight = &cfg.Search.BM25Weight
			}

			hits, err := svc.Search(cmd.Context(), query, searchOpts)
			if err != nil {
				return err
			}

			if len(opts.tags) > 0 {
				hits, err = filterHitsByTags(svc, hits, opts.tags)
				if err != nil {
					return err
				}
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), hits)
			}

			if len(hits) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No results.")
				return nil
			}

			out := cmd.OutOrStdout()
			for i, h := range hits {
				folder := h.FolderPath
				if folder == "" {
					folder = "(root)"
				}
				fmt.Fprintf(out, "%2d. %s  (%.3f)\n    %s  %s\n", i+1, h.Title, h.FinalScore,
					truncate(h.DocumentID, 12), folder)
				if opts.snippets {
					if snippet := snippetFor(svc, h.DocumentID, query); snippet != "" {
						fmt.Fprintf(out, "    %s\n", snippet)
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&opts.folder, "folder", "", "Restrict results to one folder subtree")
	cmd.Flags().StringSliceVar(&opts.tags, "tags", nil, "Require all of these tags")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "Discard hits scoring below this threshold")
	cmd.Flags().BoolVar(&opts.bm25Only, "bm25-only", false, "Use keyword scoring only (skip the semantic query)")
	cmd.Flags().BoolVar(&opts.snippets, "snippets", false, "Print a matching body snippet per hit")

	return cmd
}

// filterHitsByTags keeps hits whose document carries every required tag.
func filterHitsByTags(svc *kb.Service, hits []cache.SearchHit, tags []string) ([]cache.SearchHit, error) {
	rows, err := svc.List()
	if err != nil {
		return nil, err
	}
	tagsByID := make(map[string]map[string]bool, len(rows))
	for _, r := range rows {
		set := make(map[string]bool, len(r.Tags))
		for _, t := range r.Tags {
			set[t] = true
		}
		tagsByID[r.ID] = set
	}

	var out []cache.SearchHit
	for _, h := range hits {
		set := tagsByID[h.DocumentID]
		keep := true
		for _, want := range tags {
			if !set[docstore.NormalizeTag(want)] {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, h)
		}
	}
	return out, nil
}

// snippetFor extracts a short body excerpt around the first query term hit.
func snippetFor(svc *kb.Service, id, query string) string {
	rows, err := svc.List()
	if err != nil {
		return ""
	}
	for _, r := range rows {
		if r.ID != id {
			continue
		}
		body := r.Body
		lowerBody := strings.ToLower(body)
		idx := -1
		for _, term := range strings.Fields(strings.ToLower(query)) {
			if i := strings.Index(lowerBody, term); i >= 0 && (idx < 0 || i < idx) {
				idx = i
			}
		}
		if idx < 0 {
			return truncate(strings.TrimSpace(body), 100)
		}
		start := idx - 40
		if start < 0 {
			start = 0
		}
		return truncate(strings.TrimSpace(strings.Join(strings.Fields(body[start:]), " ")), 100)
	}
	return ""
}
