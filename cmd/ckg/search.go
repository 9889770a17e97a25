package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"ckg/internal/logging"
	"ckg/internal/retrieval"
)

var (
	searchSnapshot string
	searchLimit    int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Hybrid symbol search",
	Long: `Searches one committed snapshot with three independent candidate sets —
lexical (full-text over names, signatures and docstrings), vector (embedding
similarity, when configured) and structural (name/path match plus one-hop
graph expansion) — fused by weighted reciprocal rank.

The vector set degrades gracefully when the embedding service is down; the
response reports which sets actually ran.

Examples:
  ckg search "parse manifest"
  ckg search handle_request --snapshot 4f2a... --limit 5`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchSnapshot, "snapshot", "", "Snapshot id (default: newest committed)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum number of fused results")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	start := time.Now()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	snapshotID, err := resolveSnapshot(ctx, st, searchSnapshot)
	if err != nil {
		return err
	}

	engine := retrieval.NewEngine(st, newEmbedder(cfg), logger, retrieval.Options{
		PerSetLimit: cfg.Retrieval.PerSetLimit,
		VectorWait:  time.Duration(cfg.Retrieval.VectorWaitMs) * time.Millisecond,
		Fusion: retrieval.FusionConfig{
			RRFConstant: cfg.Retrieval.RRFConstant,
			Weights: map[retrieval.Source]float64{
				retrieval.SourceLexical:    cfg.Retrieval.LexicalWeight,
				retrieval.SourceVector:     cfg.Retrieval.VectorWeight,
				retrieval.SourceStructural: cfg.Retrieval.StructuralWeight,
			},
		},
	})
	resp, err := engine.Search(ctx, snapshotID, args[0], searchLimit)
	if err != nil {
		return err
	}

	logger.Debug("Search completed", logging.Fields{
		"query":    args[0],
		"results":  len(resp.Results),
		"duration": time.Since(start).Milliseconds(),
	})
	return printJSON(resp)
}
