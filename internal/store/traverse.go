package store

import (
	"context"
	"sort"
	"strconv"

	"ckg/internal/errors"
	"ckg/internal/model"
)

// DefaultSubgraphDepth bounds subgraph extraction when the caller passes no
// explicit depth.
const DefaultSubgraphDepth = 3

// Subgraph performs a bounded breadth-first expansion from rootIDs over the
// given edge kinds (both directions) and returns the visited nodes and the
// edges between them. Exceeding maxDepth truncates rather than errors; the
// frontier nodes whose expansion was cut off are reported on the result.
func (s *Store) Subgraph(ctx context.Context, snapshotID string, rootIDs []string, kinds []model.EdgeKind, maxDepth int) (*model.Graph, error) {
	if err := s.RequireCommitted(ctx, snapshotID); err != nil {
		return nil, err
	}
	if maxDepth <= 0 {
		maxDepth = DefaultSubgraphDepth
	}
	if len(kinds) == 0 {
		kinds = []model.EdgeKind{model.EdgeContains, model.EdgeImports, model.EdgeCalls}
	}

	visited := make(map[string]model.Node)
	depth := make(map[string]int)
	edgeSeen := make(map[string]bool)
	var edges []model.Edge
	var truncated []string

	frontier := make([]string, 0, len(rootIDs))
	for _, id := range rootIDs {
		n, err := s.getNodeUnchecked(ctx, snapshotID, id)
		if err != nil {
			return nil, err
		}
		visited[id] = *n
		depth[id] = 0
		frontier = append(frontier, id)
	}

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			break // return the partial subgraph computed so far
		}
		var next []string
		for _, id := range frontier {
			if depth[id] >= maxDepth {
				truncated = append(truncated, id)
				continue
			}
			out, err := s.OutEdges(ctx, snapshotID, id, kinds...)
			if err != nil {
				return nil, err
			}
			in, err := s.InEdges(ctx, snapshotID, id, kinds...)
			if err != nil {
				return nil, err
			}
			for _, e := range append(out, in...) {
				key := edgeKey(e)
				if !edgeSeen[key] {
					edgeSeen[key] = true
					edges = append(edges, e)
				}
				for _, nb := range []string{e.SourceID, e.TargetID} {
					if nb == "" || nb == id {
						continue
					}
					if _, ok := visited[nb]; ok {
						continue
					}
					n, err := s.getNodeUnchecked(ctx, snapshotID, nb)
					if err != nil {
						if errors.HasCode(err, errors.SymbolNotFound) {
							continue // unresolved endpoint, no node to visit
						}
						return nil, err
					}
					visited[nb] = *n
					depth[nb] = depth[id] + 1
					next = append(next, nb)
				}
			}
		}
		frontier = next
	}

	g := &model.Graph{
		Nodes:        make([]model.Node, 0, len(visited)),
		Edges:        edges,
		TruncatedIDs: truncated,
	}
	for _, n := range visited {
		g.Nodes = append(g.Nodes, n)
	}
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].QualifiedName < g.Nodes[j].QualifiedName })
	sort.Strings(g.TruncatedIDs)
	return g, nil
}

func edgeKey(e model.Edge) string {
	key := string(e.Kind) + "|" + e.SourceID + "|" + e.TargetID
	if e.CallSite != nil {
		key += "|" + e.CallSite.Path + "|" + strconv.Itoa(e.CallSite.StartLine)
	}
	return key
}
