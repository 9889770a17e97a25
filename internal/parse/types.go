// Package parse defines the parsed-file records consumed by the graph
// builder, together with producers that emit them: a tree-sitter extractor
// for source files and an adapter for precomputed SCIP indexes. The builder
// is agnostic to which producer generated a record.
package parse

import (
	"context"

	"ckg/internal/model"
)

// Extractor turns one file's source into a parsed-file record.
type Extractor interface {
	ExtractSource(ctx context.Context, path string, source []byte) ParsedFile
}

// SymbolDef is one definition found in a file. Container is the dotted path
// of the enclosing definition ("" for file-level definitions), so the full
// dotted path of the symbol is Container + "." + Name.
type SymbolDef struct {
	Name      string         `json:"name"`
	Kind      model.NodeKind `json:"kind"` // class, function or symbol
	Container string         `json:"container,omitempty"`
	StartLine int            `json:"startLine"`
	EndLine   int            `json:"endLine"`
	Signature string         `json:"signature,omitempty"`
	Docstring string         `json:"docstring,omitempty"`
	// ContentHash fingerprints the definition's source text so snapshot
	// diffs can detect body changes without re-reading source. Producers
	// without source access (SCIP) leave it empty.
	ContentHash string `json:"contentHash,omitempty"`
}

// DottedPath returns the dotted definition path of the symbol within its
// file.
func (s *SymbolDef) DottedPath() string {
	if s.Container == "" {
		return s.Name
	}
	return s.Container + "." + s.Name
}

// ImportStmt is one raw import statement. Module is the dotted module path
// as written; Level counts leading dots for relative imports (0 = absolute).
type ImportStmt struct {
	Module string `json:"module"`
	Level  int    `json:"level,omitempty"`
	Alias  string `json:"alias,omitempty"`
	Line   int    `json:"line"`
}

// CallExpr is one raw call expression together with the dotted path of the
// enclosing function. Callee is the name as written at the call site and may
// itself be dotted (e.g. "mod.fn").
type CallExpr struct {
	Caller string `json:"caller"`
	Callee string `json:"callee"`
	Line   int    `json:"line"`
}

// RouteDecl marks a function registered as an HTTP route handler.
type RouteDecl struct {
	Handler      string `json:"handler"`
	Method       string `json:"method"`
	PathTemplate string `json:"pathTemplate"`
}

// ParsedFile is the per-file unit of builder input. A producer that fails on
// a file still emits a record with Err set so the builder can count it on the
// snapshot's completeness report.
type ParsedFile struct {
	Path    string       `json:"path"`
	Symbols []SymbolDef  `json:"symbols,omitempty"`
	Imports []ImportStmt `json:"imports,omitempty"`
	Calls   []CallExpr   `json:"calls,omitempty"`
	Routes  []RouteDecl  `json:"routes,omitempty"`
	Err     string       `json:"error,omitempty"`
}

// Errored reports whether parsing this file failed.
func (f *ParsedFile) Errored() bool {
	return f.Err != ""
}
