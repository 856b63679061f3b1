package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pagewise-ai/pagewise/internal/output"
	"github.com/pagewise-ai/pagewise/internal/search"
	"github.com/pagewise-ai/pagewise/internal/store"
)

// newSearchCmd creates the search command.
func newSearchCmd() *cobra.Command {
	var topK int
	var rerank bool
	var jsonOutput bool
	var filters []string
	var policy string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed corpus",
		Long: `Search runs one hybrid query: keyword and vector retrieval in parallel,
score fusion, optional cross-encoder reranking, and exact-match metadata
filters. Every result carries its page number and score breakdown.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			filterMap, err := parseFilters(filters)
			if err != nil {
				return err
			}

			resp, err := a.engine.Search(cmd.Context(), strings.Join(args, " "), search.SearchOptions{
				TopK:         topK,
				UseReranker:  rerank,
				Filters:      filterMap,
				FilterPolicy: store.FilterPolicy(policy),
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}

			output.NewRenderer(cmd.OutOrStdout()).RenderResponse(resp)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of results (default from config)")
	cmd.Flags().BoolVar(&rerank, "rerank", false, "Rerank the fused pool with the cross-encoder")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil,
		"Metadata filter as field=value (fiscal_period, company_name, department_name)")
	cmd.Flags().StringVar(&policy, "filter-policy", "",
		"Missing-metadata policy: strict or lenient (default from config)")

	return cmd
}

// parseFilters converts field=value pairs into the filter map.
func parseFilters(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	filters := make(map[string]string, len(pairs))
	for _, p := range pairs {
		field, value, ok := strings.Cut(p, "=")
		if !ok || field == "" || value == "" {
			return nil, fmt.Errorf("invalid filter %q, expected field=value", p)
		}
		filters[field] = value
	}
	return filters, nil
}
