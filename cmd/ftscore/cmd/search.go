package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ftscore/internal/query/pipeline"
)

type searchOptions struct {
	limit    int
	offset   int
	filter   string
	sort     []string
	facets   []string
	format   string
	embedder string
	semRatio float64
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <index-uid> <query>",
		Short: "Search an index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid := args[0]
			query := strings.Join(args[1:], " ")
			return runSearch(cmd, uid, query, opts)
		},
	}
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "Maximum number of hits")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Number of hits to skip")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Filter expression")
	cmd.Flags().StringSliceVar(&opts.sort, "sort", nil, "Sort rules (repeatable, e.g. --sort rating:desc)")
	cmd.Flags().StringSliceVar(&opts.facets, "facets", nil, "Facets to compute a distribution for")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().StringVar(&opts.embedder, "embedder", "", "Embedder to use for semantic search")
	cmd.Flags().Float64Var(&opts.semRatio, "semantic-ratio", 0, "Blend weight for vector similarity (0 disables)")

	return cmd
}

func runSearch(cmd *cobra.Command, indexUID, query string, opts searchOptions) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	req := pipeline.Request{
		Query:         query,
		Q:             query,
		Embedder:      opts.embedder,
		SemanticRatio: opts.semRatio,
		Filter:        opts.filter,
		Sort:          opts.sort,
		Facets:        opts.facets,
		Limit:         opts.limit,
		Offset:        opts.offset,
	}

	resp, err := eng.Search(indexUID, req)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d hits (estimated total %d) for %q:\n\n", len(resp.Hits), resp.EstimatedTotalHits, query)
	for i, hit := range resp.Hits {
		fmt.Fprintf(cmd.OutOrStdout(), "%d. %s (score: %.3f)\n", i+1, hit.ExternalID, hit.RankingScore)
	}
	if len(resp.FacetDistribution) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "\nfacets:")
		for facet, values := range resp.FacetDistribution {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s:\n", facet)
			for value, count := range values {
				fmt.Fprintf(cmd.OutOrStdout(), "    %s: %d\n", value, count)
			}
		}
	}
	return nil
}
