package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evanwmart/augmented-knowledge-interfaces/internal/output"
	"github.com/evanwmart/augmented-knowledge-interfaces/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	strategy string
	alpha    float64
	limit    int
	format   string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed documentation",
		Long: `Search the documentation index.

The default auto strategy routes code-like queries to keyword matching
and natural-language queries to hybrid retrieval, which fuses BM25 and
embedding similarity with an alpha-weighted score.

Examples:
  aki search "how do I configure authentication"
  aki search "Client.Dial()" --strategy lexical
  aki search "error handling" --strategy hybrid --alpha 0.7
  aki search "setup" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.strategy, "strategy", "s", "", "Retrieval strategy: auto, lexical, semantic, hybrid (default from config)")
	cmd.Flags().Float64VarP(&opts.alpha, "alpha", "a", -1, "Hybrid fusion weight on the lexical score, 0.0-1.0 (default from config)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	strategyName := cfg.Search.Strategy
	if opts.strategy != "" {
		strategyName = opts.strategy
	}
	strategy, err := search.ParseStrategy(strategyName)
	if err != nil {
		return err
	}

	alpha := cfg.Search.Alpha
	if opts.alpha >= 0 {
		alpha = opts.alpha
	}
	topK := cfg.Search.TopK
	if opts.limit > 0 {
		topK = opts.limit
	}

	stores, err := openQueryStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = stores.Close() }()

	retriever := search.NewRetriever(stores.lexical, storeVectors(stores), stores.meta,
		stores.embedder, cfg.Search.Alpha)

	slog.Info("search_started",
		slog.String("query", query),
		slog.String("strategy", string(strategy)),
		slog.Int("top_k", topK))

	results, err := retriever.Retrieve(ctx, query, search.Options{
		Strategy: strategy,
		Alpha:    alpha,
		TopK:     topK,
	})
	if err != nil {
		return err
	}

	slog.Info("search_complete", slog.Int("results", len(results)))
	return output.WriteResults(cmd.OutOrStdout(), query, results, output.ParseFormat(opts.format))
}
