package main

import (
	"context"

	"github.com/spf13/cobra"

	"ckg/internal/model"
	"ckg/internal/store"
)

var (
	neighborsSnapshot string
	neighborsKind     string
	neighborsDir      string
)

var neighborsCmd = &cobra.Command{
	Use:   "neighbors <node>",
	Short: "Adjacent nodes over one edge kind",
	Long: `Lists the nodes adjacent to the given node (id or qualified name) over one
edge kind, in the chosen direction.

Examples:
  ckg neighbors "api/server.py:handle_request" --kind CALLS --direction out
  ckg neighbors "api/server.py" --kind IMPORTS --direction in`,
	Args: cobra.ExactArgs(1),
	RunE: runNeighbors,
}

func init() {
	neighborsCmd.Flags().StringVar(&neighborsSnapshot, "snapshot", "", "Snapshot id (default: newest committed)")
	neighborsCmd.Flags().StringVar(&neighborsKind, "kind", "CALLS", "Edge kind (CONTAINS, IMPORTS, CALLS)")
	neighborsCmd.Flags().StringVar(&neighborsDir, "direction", "out", "Edge direction (out, in)")
	rootCmd.AddCommand(neighborsCmd)
}

func runNeighbors(cmd *cobra.Command, args []string) error {
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
	snapshotID, err := resolveSnapshot(ctx, st, neighborsSnapshot)
	if err != nil {
		return err
	}
	nodeID, err := resolveNode(ctx, st, snapshotID, args[0])
	if err != nil {
		return err
	}

	nodes, err := st.Neighbors(ctx, snapshotID, nodeID,
		model.EdgeKind(neighborsKind), model.Direction(neighborsDir))
	if err != nil {
		return err
	}
	return printJSON(nodes)
}

var (
	subgraphSnapshot string
	subgraphDepth    int
	subgraphKinds    []string
)

var subgraphCmd = &cobra.Command{
	Use:   "subgraph <node>...",
	Short: "Bounded subgraph around one or more nodes",
	Long: `Extracts the subgraph within a bounded number of hops of the given nodes
(ids or qualified names), traversing the selected edge kinds in both
directions. Frontier nodes whose expansion the depth bound cut off are listed
as truncated.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubgraph,
}

func init() {
	subgraphCmd.Flags().StringVar(&subgraphSnapshot, "snapshot", "", "Snapshot id (default: newest committed)")
	subgraphCmd.Flags().IntVar(&subgraphDepth, "depth", store.DefaultSubgraphDepth, "Hop bound")
	subgraphCmd.Flags().StringSliceVar(&subgraphKinds, "kinds", nil, "Edge kinds to traverse (default CONTAINS,IMPORTS,CALLS)")
	rootCmd.AddCommand(subgraphCmd)
}

func runSubgraph(cmd *cobra.Command, args []string) error {
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
	snapshotID, err := resolveSnapshot(ctx, st, subgraphSnapshot)
	if err != nil {
		return err
	}

	roots := make([]string, 0, len(args))
	for _, ref := range args {
		id, err := resolveNode(ctx, st, snapshotID, ref)
		if err != nil {
			return err
		}
		roots = append(roots, id)
	}

	var kinds []model.EdgeKind
	for _, k := range subgraphKinds {
		kinds = append(kinds, model.EdgeKind(k))
	}

	graph, err := st.Subgraph(ctx, snapshotID, roots, kinds, subgraphDepth)
	if err != nil {
		return err
	}
	return printJSON(graph)
}
