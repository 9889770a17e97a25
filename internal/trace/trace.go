// Package trace walks outgoing CALLS edges depth-first from an entry symbol
// and returns the visited call graph with cycles collapsed to marker edges.
// Depth and node budgets bound the walk so dense call graphs terminate; hitting
// a budget is a marked truncation, not an error.
package trace

import (
	"context"
	"sort"

	"ckg/internal/logging"
	"ckg/internal/model"
	"ckg/internal/store"
)

// Termination marks why a trace node was not expanded further.
type Termination string

const (
	// TerminationNone means the node's outgoing calls were fully expanded.
	TerminationNone Termination = ""
	// TerminationLeaf means the node has no outgoing CALLS edges.
	TerminationLeaf Termination = "leaf"
	// TerminationDepth means the depth budget cut the branch at this node.
	TerminationDepth Termination = "depth_exceeded"
	// TerminationBudget means the global node budget stopped expansion here.
	TerminationBudget Termination = "budget_exceeded"
)

// Node is one visited symbol. Depth is the shortest DFS depth at which the
// symbol was first reached from the entry.
type Node struct {
	model.Node
	Depth       int         `json:"depth"`
	Termination Termination `json:"termination,omitempty"`
}

// Edge is one call step in the trace. A Cycle edge points back to a symbol
// already on the active path and was not followed. Ambiguous carries the
// ambiguity flag of the underlying CALLS edge so rendering can distinguish
// certain from speculative branches.
type Edge struct {
	SourceID  string `json:"sourceId"`
	TargetID  string `json:"targetId"`
	Ambiguous bool   `json:"ambiguous,omitempty"`
	Cycle     bool   `json:"cycle,omitempty"`
	CallLine  int    `json:"callLine,omitempty"`
}

// Graph is the structured trace result. It is acyclic apart from edges
// explicitly marked Cycle.
type Graph struct {
	EntryID         string `json:"entryId"`
	Nodes           []Node `json:"nodes"`
	Edges           []Edge `json:"edges"`
	DepthReached    int    `json:"depthReached"`
	DepthTruncated  bool   `json:"depthTruncated"`
	BudgetTruncated bool   `json:"budgetTruncated"`
	// Incomplete is set when the caller's context expired mid-walk; the
	// graph holds everything computed up to that point.
	Incomplete bool `json:"incomplete,omitempty"`
}

// Limits bounds a single trace.
type Limits struct {
	MaxDepth int
	MaxNodes int
}

// DefaultLimits returns the trace budget defaults.
func DefaultLimits() Limits {
	return Limits{MaxDepth: 10, MaxNodes: 200}
}

// Engine runs call traces against committed snapshots. Pure reader.
type Engine struct {
	store  *store.Store
	logger *logging.Logger
}

// NewEngine creates a trace engine.
func NewEngine(st *store.Store, logger *logging.Logger) *Engine {
	return &Engine{store: st, logger: logger}
}

type frame struct {
	id    string
	depth int
	edges []model.Edge
	next  int
}

// Trace walks outgoing CALLS edges from entryID within one committed
// snapshot. A symbol already on the active path is recorded as a cycle edge
// and not re-descended; a symbol visited on an earlier branch is linked but
// its subtree is not expanded again.
func (e *Engine) Trace(ctx context.Context, snapshotID, entryID string, limits Limits) (*Graph, error) {
	if err := e.store.RequireCommitted(ctx, snapshotID); err != nil {
		return nil, err
	}
	if limits.MaxDepth <= 0 {
		limits.MaxDepth = DefaultLimits().MaxDepth
	}
	if limits.MaxNodes <= 0 {
		limits.MaxNodes = DefaultLimits().MaxNodes
	}

	entry, err := e.store.GetNode(ctx, snapshotID, entryID)
	if err != nil {
		return nil, err
	}

	g := &Graph{EntryID: entryID}
	visited := map[string]*Node{entryID: {Node: *entry, Depth: 0}}
	onPath := map[string]bool{entryID: true}
	cycleSeen := make(map[string]bool)

	entryEdges, err := e.store.OutEdges(ctx, snapshotID, entryID, model.EdgeCalls)
	if err != nil {
		return nil, err
	}
	if len(entryEdges) == 0 {
		visited[entryID].Termination = TerminationLeaf
	}
	stack := []*frame{{id: entryID, depth: 0, edges: entryEdges}}

	for len(stack) > 0 {
		select {
		case <-ctx.Done():
			g.Incomplete = true
			e.finish(g, visited)
			return g, nil
		default:
		}

		top := stack[len(stack)-1]
		if top.next >= len(top.edges) {
			stack = stack[:len(stack)-1]
			delete(onPath, top.id)
			continue
		}
		edge := top.edges[top.next]
		top.next++

		childDepth := top.depth + 1
		line := 0
		if edge.CallSite != nil {
			line = edge.CallSite.StartLine
		}

		if onPath[edge.TargetID] {
			// Back-edge: record exactly once per source/target pair,
			// never follow.
			key := edge.SourceID + "\x00" + edge.TargetID
			if !cycleSeen[key] {
				cycleSeen[key] = true
				g.Edges = append(g.Edges, Edge{
					SourceID:  edge.SourceID,
					TargetID:  edge.TargetID,
					Ambiguous: edge.Ambiguous,
					Cycle:     true,
					CallLine:  line,
				})
			}
			continue
		}

		if existing, ok := visited[edge.TargetID]; ok {
			// Cross-edge to an already expanded branch.
			g.Edges = append(g.Edges, Edge{
				SourceID:  edge.SourceID,
				TargetID:  existing.ID,
				Ambiguous: edge.Ambiguous,
				CallLine:  line,
			})
			continue
		}

		if len(visited) >= limits.MaxNodes {
			g.BudgetTruncated = true
			if visited[top.id].Termination == TerminationNone {
				visited[top.id].Termination = TerminationBudget
			}
			continue
		}

		target, err := e.store.GetNode(ctx, snapshotID, edge.TargetID)
		if err != nil {
			return nil, err
		}
		tn := &Node{Node: *target, Depth: childDepth}
		visited[edge.TargetID] = tn
		if childDepth > g.DepthReached {
			g.DepthReached = childDepth
		}
		g.Edges = append(g.Edges, Edge{
			SourceID:  edge.SourceID,
			TargetID:  edge.TargetID,
			Ambiguous: edge.Ambiguous,
			CallLine:  line,
		})

		if childDepth >= limits.MaxDepth {
			g.DepthTruncated = true
			tn.Termination = TerminationDepth
			continue
		}

		childEdges, err := e.store.OutEdges(ctx, snapshotID, edge.TargetID, model.EdgeCalls)
		if err != nil {
			return nil, err
		}
		if len(childEdges) == 0 {
			tn.Termination = TerminationLeaf
			continue
		}
		onPath[edge.TargetID] = true
		stack = append(stack, &frame{id: edge.TargetID, depth: childDepth, edges: childEdges})
	}

	e.finish(g, visited)
	e.logger.Debug("Trace completed", logging.Fields{
		"entry":       entryID,
		"nodes":       len(g.Nodes),
		"edges":       len(g.Edges),
		"depth":       g.DepthReached,
		"depth_trunc": g.DepthTruncated,
		"node_trunc":  g.BudgetTruncated,
	})
	return g, nil
}

// finish flattens the visited map into a deterministic node list.
func (e *Engine) finish(g *Graph, visited map[string]*Node) {
	g.Nodes = make([]Node, 0, len(visited))
	for _, n := range visited {
		g.Nodes = append(g.Nodes, *n)
	}
	sort.Slice(g.Nodes, func(i, j int) bool {
		if g.Nodes[i].Depth != g.Nodes[j].Depth {
			return g.Nodes[i].Depth < g.Nodes[j].Depth
		}
		return g.Nodes[i].QualifiedName < g.Nodes[j].QualifiedName
	})
}
