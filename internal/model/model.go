// Package model defines the typed nodes and edges of the code knowledge graph.
// Every node and edge belongs to exactly one snapshot; snapshots are immutable
// once committed and cross-snapshot comparison is done by qualified name, never
// by edge linkage.
package model

import (
	"fmt"
	"strings"
)

// NodeKind discriminates node types in the graph.
type NodeKind string

const (
	NodeRepository NodeKind = "repository"
	NodeSnapshot   NodeKind = "snapshot"
	NodeFile       NodeKind = "file"
	NodeModule     NodeKind = "module"
	NodeClass      NodeKind = "class"
	NodeFunction   NodeKind = "function"
	NodeSymbol     NodeKind = "symbol"
)

// EdgeKind discriminates edge types in the graph.
type EdgeKind string

const (
	// EdgeContains links a structural parent to a definition it encloses
	// (File->Symbol, Module->Class, Class->Function).
	EdgeContains EdgeKind = "CONTAINS"
	// EdgeImports links a file to an imported file or module.
	EdgeImports EdgeKind = "IMPORTS"
	// EdgeCalls links a calling function to a callee candidate.
	EdgeCalls EdgeKind = "CALLS"
	// EdgeDefinesEndpoint attaches HTTP route metadata to a handler function.
	EdgeDefinesEndpoint EdgeKind = "DEFINES_ENDPOINT"
)

// Resolution indicates whether an IMPORTS edge target was found inside the
// ingested set.
type Resolution string

const (
	ResolutionResolved   Resolution = "resolved"
	ResolutionUnresolved Resolution = "unresolved"
)

// Direction selects edge orientation for traversal queries.
type Direction string

const (
	DirectionOut Direction = "out"
	DirectionIn  Direction = "in"
)

// Span locates a definition or call site in source.
type Span struct {
	Path      string `json:"path"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
}

// Node is a typed graph node. ID is stable within a snapshot only.
type Node struct {
	ID            string   `json:"id"`
	SnapshotID    string   `json:"snapshotId"`
	Kind          NodeKind `json:"kind"`
	Name          string   `json:"name"`
	QualifiedName string   `json:"qualifiedName"`
	Span          Span     `json:"span"`
	Signature     string   `json:"signature,omitempty"`
	Docstring     string   `json:"docstring,omitempty"`
	// ContentHash fingerprints the definition's source text; snapshot diffs
	// compare it (with Signature) to classify symbols as modified.
	ContentHash string `json:"contentHash,omitempty"`
}

// Endpoint is the route metadata carried by a DEFINES_ENDPOINT edge.
type Endpoint struct {
	Method       string `json:"method"`
	PathTemplate string `json:"pathTemplate"`
}

// Edge is a typed, directed graph edge. Both endpoints live in the same
// snapshot. A CALLS edge whose static resolution produced more than one
// candidate is emitted once per candidate with Ambiguous set.
type Edge struct {
	SnapshotID string     `json:"snapshotId"`
	Kind       EdgeKind   `json:"kind"`
	SourceID   string     `json:"sourceId"`
	TargetID   string     `json:"targetId,omitempty"`
	Resolution Resolution `json:"resolution,omitempty"`
	Ambiguous  bool       `json:"ambiguous,omitempty"`
	CallSite   *Span      `json:"callSite,omitempty"`
	Endpoint   *Endpoint  `json:"endpoint,omitempty"`
}

// SnapshotStatus tracks the snapshot lifecycle. Only committed snapshots are
// visible to the read-side engines.
type SnapshotStatus string

const (
	SnapshotPending   SnapshotStatus = "pending"
	SnapshotCommitted SnapshotStatus = "committed"
	SnapshotFailed    SnapshotStatus = "failed"
)

// Snapshot is the commit record for one ingested repository state.
type Snapshot struct {
	ID            string         `json:"id"`
	RepositoryRef string         `json:"repositoryRef"`
	Status        SnapshotStatus `json:"status"`
	Complete      bool           `json:"complete"`
	FileCount     int            `json:"fileCount"`
	SymbolCount   int            `json:"symbolCount"`
	ErroredFiles  int            `json:"erroredFiles"`
	CreatedAt     string         `json:"createdAt"`
	CommittedAt   string         `json:"committedAt,omitempty"`
}

// Graph is a plain node/edge set returned by subgraph extraction and
// traversal queries. TruncatedIDs lists frontier nodes whose expansion was
// cut off by a depth or node budget.
type Graph struct {
	Nodes        []Node   `json:"nodes"`
	Edges        []Edge   `json:"edges"`
	TruncatedIDs []string `json:"truncatedIds,omitempty"`
}

// QualifiedName builds the snapshot-unique identifier for a definition:
// the containing file path plus the dotted definition path.
func QualifiedName(filePath string, parts ...string) string {
	if len(parts) == 0 {
		return filePath
	}
	return filePath + ":" + strings.Join(parts, ".")
}

// SplitQualifiedName returns the file path and dotted definition path of a
// qualified name. The dotted part is empty for file nodes.
func SplitQualifiedName(qname string) (filePath, dotted string) {
	if i := strings.LastIndex(qname, ":"); i >= 0 {
		return qname[:i], qname[i+1:]
	}
	return qname, ""
}

// BareName returns the last segment of a qualified name, the identifier a
// call expression would use without qualification.
func BareName(qname string) string {
	_, dotted := SplitQualifiedName(qname)
	if dotted == "" {
		return qname
	}
	if i := strings.LastIndex(dotted, "."); i >= 0 {
		return dotted[i+1:]
	}
	return dotted
}

// Validate checks edge invariants that the store enforces on write.
func (e *Edge) Validate() error {
	if e.SourceID == "" {
		return fmt.Errorf("edge %s has no source", e.Kind)
	}
	switch e.Kind {
	case EdgeContains, EdgeCalls:
		if e.TargetID == "" {
			return fmt.Errorf("edge %s requires a target", e.Kind)
		}
	case EdgeImports:
		if e.Resolution == ResolutionResolved && e.TargetID == "" {
			return fmt.Errorf("resolved import requires a target")
		}
	case EdgeDefinesEndpoint:
		if e.Endpoint == nil {
			return fmt.Errorf("endpoint edge requires route metadata")
		}
	default:
		return fmt.Errorf("unknown edge kind %q", e.Kind)
	}
	return nil
}

// IsDefinable reports whether the node kind carries a snapshot-unique
// qualified name (files and code definitions, not repository/snapshot
// bookkeeping nodes).
func (k NodeKind) IsDefinable() bool {
	switch k {
	case NodeFile, NodeModule, NodeClass, NodeFunction, NodeSymbol:
		return true
	}
	return false
}
