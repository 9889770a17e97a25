// Package diff compares two committed snapshots of the same repository and
// computes the blast radius of the changes. Snapshots share no node ids, so
// symbols are matched across snapshots by qualified name; a symbol is
// modified when its signature or content hash differs between the two.
package diff

import (
	"context"
	"sort"

	"ckg/internal/errors"
	"ckg/internal/logging"
	"ckg/internal/model"
	"ckg/internal/store"
)

// ChangeKind classifies one qualified name across the two snapshots.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

// Change is one classified symbol. BaseID/TargetID are the node ids within
// their respective snapshots; one of them is empty for added/removed.
type Change struct {
	QualifiedName string         `json:"qualifiedName"`
	Kind          ChangeKind     `json:"kind"`
	NodeKind      model.NodeKind `json:"nodeKind"`
	BaseID        string         `json:"baseId,omitempty"`
	TargetID      string         `json:"targetId,omitempty"`
}

// Result is the symbol-level delta between two snapshots. Unchanged symbols
// are counted, not listed.
type Result struct {
	BaseSnapshotID   string   `json:"baseSnapshotId"`
	TargetSnapshotID string   `json:"targetSnapshotId"`
	Changes          []Change `json:"changes"`
	Unchanged        int      `json:"unchanged"`
}

// Empty reports whether the two snapshots hold identical symbols.
func (r *Result) Empty() bool {
	return len(r.Changes) == 0
}

// ImpactedNode is a symbol that transitively depends on a changed symbol.
// Hops is the shortest reverse-edge distance to the nearest change; a changed
// symbol itself has Hops 0.
type ImpactedNode struct {
	model.Node
	Hops int `json:"hops"`
}

// Impact is the reverse-reachability closure of a diff within the target
// snapshot. Truncated is set when the hop limit cut the expansion; Incomplete
// is set when cancellation stopped the walk before the closure was full.
type Impact struct {
	SnapshotID string         `json:"snapshotId"`
	MaxHops    int            `json:"maxHops"`
	Nodes      []ImpactedNode `json:"nodes"`
	Truncated  bool           `json:"truncated"`
	Incomplete bool           `json:"incomplete"`
}

// Engine runs snapshot diffs and impact analyses. Pure reader.
type Engine struct {
	store  *store.Store
	logger *logging.Logger
}

// NewEngine creates a diff engine.
func NewEngine(st *store.Store, logger *logging.Logger) *Engine {
	return &Engine{store: st, logger: logger}
}

// diffKinds are the node kinds compared across snapshots. File nodes are
// containers, not symbols; a file-level change always shows up through the
// definitions inside it.
var diffKinds = []model.NodeKind{model.NodeModule, model.NodeClass, model.NodeFunction, model.NodeSymbol}

// Diff classifies every symbol qualified name across the two snapshots.
// Diffing a snapshot against itself yields an empty result.
func (e *Engine) Diff(ctx context.Context, baseID, targetID string) (*Result, error) {
	base, err := e.store.ListNodes(ctx, baseID, diffKinds...)
	if err != nil {
		return nil, err
	}
	target, err := e.store.ListNodes(ctx, targetID, diffKinds...)
	if err != nil {
		return nil, err
	}

	baseByName := make(map[string]*model.Node, len(base))
	for i := range base {
		baseByName[base[i].QualifiedName] = &base[i]
	}

	res := &Result{BaseSnapshotID: baseID, TargetSnapshotID: targetID}
	for i := range target {
		t := &target[i]
		b, ok := baseByName[t.QualifiedName]
		if !ok {
			res.Changes = append(res.Changes, Change{
				QualifiedName: t.QualifiedName,
				Kind:          ChangeAdded,
				NodeKind:      t.Kind,
				TargetID:      t.ID,
			})
			continue
		}
		delete(baseByName, t.QualifiedName)
		if b.Signature != t.Signature || b.ContentHash != t.ContentHash {
			res.Changes = append(res.Changes, Change{
				QualifiedName: t.QualifiedName,
				Kind:          ChangeModified,
				NodeKind:      t.Kind,
				BaseID:        b.ID,
				TargetID:      t.ID,
			})
		} else {
			res.Unchanged++
		}
	}
	for qname, b := range baseByName {
		res.Changes = append(res.Changes, Change{
			QualifiedName: qname,
			Kind:          ChangeRemoved,
			NodeKind:      b.Kind,
			BaseID:        b.ID,
		})
	}
	sort.Slice(res.Changes, func(i, j int) bool {
		return res.Changes[i].QualifiedName < res.Changes[j].QualifiedName
	})

	e.logger.Debug("Snapshot diff computed", logging.Fields{
		"base": baseID, "target": targetID,
		"changes": len(res.Changes), "unchanged": res.Unchanged,
	})
	return res, nil
}

// ImpactOf expands the diff's changed symbols to everything that transitively
// depends on them inside the target snapshot: a breadth-first walk over
// reverse CALLS and IMPORTS edges from all changed symbols at once, so each
// reached node carries its shortest hop distance. Changed symbols are lifted
// to their containing file nodes before the walk — IMPORTS edges connect
// files, so importers of a changed file surface as dependents. Removed
// symbols have no node in the target snapshot; their dependents are picked up
// through the symbols that referenced them and were themselves re-resolved,
// so the seed set is the added and modified target nodes. Cancellation mid-
// walk stops expansion and returns what was reached, marked incomplete.
func (e *Engine) ImpactOf(ctx context.Context, d *Result, snapshotID string, maxHops int) (*Impact, error) {
	if err := e.store.RequireCommitted(ctx, snapshotID); err != nil {
		return nil, err
	}
	if maxHops <= 0 {
		maxHops = 4
	}

	imp := &Impact{SnapshotID: snapshotID, MaxHops: maxHops}
	dist := make(map[string]int)
	nodes := make(map[string]model.Node)
	var frontier []string

	seed := func(n *model.Node) {
		if _, ok := dist[n.ID]; ok {
			return
		}
		dist[n.ID] = 0
		nodes[n.ID] = *n
		frontier = append(frontier, n.ID)
	}
	for _, c := range d.Changes {
		if c.TargetID == "" {
			continue
		}
		n, err := e.store.GetNode(ctx, snapshotID, c.TargetID)
		if err != nil {
			return nil, err
		}
		seed(n)
		if path, dotted := model.SplitQualifiedName(c.QualifiedName); dotted != "" {
			file, err := e.store.GetNodeByQualifiedName(ctx, snapshotID, path)
			if err != nil {
				if !errors.HasCode(err, errors.SymbolNotFound) {
					return nil, err
				}
				continue
			}
			seed(file)
		}
	}
	sort.Strings(frontier)

walk:
	for hops := 1; len(frontier) > 0; hops++ {
		if hops > maxHops {
			imp.Truncated = true
			break
		}
		var next []string
		for _, id := range frontier {
			select {
			case <-ctx.Done():
				imp.Incomplete = true
				break walk
			default:
			}
			edges, err := e.store.InEdges(ctx, snapshotID, id, model.EdgeCalls, model.EdgeImports)
			if err != nil {
				if ctx.Err() != nil {
					imp.Incomplete = true
					break walk
				}
				return nil, err
			}
			for _, edge := range edges {
				if _, seen := dist[edge.SourceID]; seen {
					continue
				}
				n, err := e.store.GetNode(ctx, snapshotID, edge.SourceID)
				if err != nil {
					if ctx.Err() != nil {
						imp.Incomplete = true
						break walk
					}
					return nil, err
				}
				dist[edge.SourceID] = hops
				nodes[edge.SourceID] = *n
				next = append(next, edge.SourceID)
			}
		}
		sort.Strings(next)
		frontier = next
	}

	for id, hops := range dist {
		imp.Nodes = append(imp.Nodes, ImpactedNode{Node: nodes[id], Hops: hops})
	}
	sort.Slice(imp.Nodes, func(i, j int) bool {
		if imp.Nodes[i].Hops != imp.Nodes[j].Hops {
			return imp.Nodes[i].Hops < imp.Nodes[j].Hops
		}
		return imp.Nodes[i].QualifiedName < imp.Nodes[j].QualifiedName
	})
	return imp, nil
}
