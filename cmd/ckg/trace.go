package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"ckg/internal/trace"
)

var (
	traceSnapshot string
	traceDepth    int
	traceNodes    int
	traceTimeout  time.Duration
)

var traceCmd = &cobra.Command{
	Use:   "trace <entry>",
	Short: "Trace the call graph from an entry symbol",
	Long: `Walks outgoing CALLS edges depth-first from the entry symbol and returns the
reachable call graph. The entry is a node id or a qualified name
(path/to/file.py:Class.method).

Cycles are collapsed to marker edges, ambiguous calls appear as flagged
parallel branches, and depth/node budgets truncate with explicit markers
rather than failing.

Examples:
  ckg trace "api/server.py:handle_request"
  ckg trace "api/server.py:handle_request" --max-depth 5 --max-nodes 50`,
	Args: cobra.ExactArgs(1),
	RunE: runTrace,
}

func init() {
	traceCmd.Flags().StringVar(&traceSnapshot, "snapshot", "", "Snapshot id (default: newest committed)")
	traceCmd.Flags().IntVar(&traceDepth, "max-depth", 0, "Depth budget (default from config)")
	traceCmd.Flags().IntVar(&traceNodes, "max-nodes", 0, "Node budget (default from config)")
	traceCmd.Flags().DurationVar(&traceTimeout, "timeout", 0, "Abort after this duration, returning the partial trace")
	rootCmd.AddCommand(traceCmd)
}

func runTrace(cmd *cobra.Command, args []string) error {
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
	if traceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, traceTimeout)
		defer cancel()
	}

	snapshotID, err := resolveSnapshot(ctx, st, traceSnapshot)
	if err != nil {
		return err
	}
	entryID, err := resolveNode(ctx, st, snapshotID, args[0])
	if err != nil {
		return err
	}

	limits := trace.Limits{MaxDepth: cfg.Trace.MaxDepth, MaxNodes: cfg.Trace.MaxNodes}
	if traceDepth > 0 {
		limits.MaxDepth = traceDepth
	}
	if traceNodes > 0 {
		limits.MaxNodes = traceNodes
	}

	graph, err := trace.NewEngine(st, logger).Trace(ctx, snapshotID, entryID, limits)
	if err != nil {
		return err
	}
	return printJSON(graph)
}
