// Package builder converts parsed-file records into the graph of one
// snapshot. The build is two-phase: every definition in every file is
// collected into the snapshot's symbol table first, and only then are
// imports and calls resolved — cross-file resolution against a partial table
// would make ambiguity order-dependent.
package builder

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"ckg/internal/embed"
	"ckg/internal/logging"
	"ckg/internal/model"
	"ckg/internal/parse"
	"ckg/internal/store"
)

// Builder writes one snapshot at a time. All writes target the snapshot
// being built; committed snapshots are never touched.
type Builder struct {
	store    *store.Store
	embedder embed.Embedder // nil disables vector indexing
	logger   *logging.Logger
}

// New creates a Builder. embedder may be nil.
func New(st *store.Store, embedder embed.Embedder, logger *logging.Logger) *Builder {
	return &Builder{store: st, embedder: embedder, logger: logger}
}

// CommitResult is the completeness report of one build. Per-file failures
// and degraded embedding are reported here, never silently dropped.
type CommitResult struct {
	SnapshotID        string   `json:"snapshotId"`
	RepositoryRef     string   `json:"repositoryRef"`
	Complete          bool     `json:"complete"`
	FileCount         int      `json:"fileCount"`
	SymbolCount       int      `json:"symbolCount"`
	EdgeCount         int      `json:"edgeCount"`
	ErroredFiles      []string `json:"erroredFiles,omitempty"`
	ResolvedImports   int      `json:"resolvedImports"`
	UnresolvedImports int      `json:"unresolvedImports"`
	ResolvedCalls     int      `json:"resolvedCalls"`
	AmbiguousCalls    int      `json:"ambiguousCalls"`
	Endpoints         int      `json:"endpoints"`
	EmbeddedSymbols   int      `json:"embeddedSymbols"`
	EmbeddingSkipped  string   `json:"embeddingSkipped,omitempty"`
}

// symbolTable is the complete in-memory name index of the snapshot under
// construction. It is populated by the collect phase and read by the resolve
// phase; the build is single-threaded per snapshot so no locking is needed.
type symbolTable struct {
	byQualified  map[string]string   // qualified name -> node id
	byBare       map[string][]string // bare name -> node ids, sorted by qualified name
	fileIDByPath map[string]string   // file path -> file node id
	moduleToPath map[string]string   // dotted module name -> file path ("" = collision)
}

// Build ingests parsed files into a fresh snapshot and commits it. The
// returned CommitResult is also delivered when the snapshot committed as
// incomplete; only hard failures (conflicting writer, storage errors) return
// a nil result.
func (b *Builder) Build(ctx context.Context, snapshotID, repositoryRef string, files []parse.ParsedFile) (*CommitResult, error) {
	if snapshotID == "" {
		snapshotID = uuid.New().String()
	}
	if err := b.store.CreateSnapshot(ctx, snapshotID, repositoryRef); err != nil {
		return nil, err
	}

	result := &CommitResult{SnapshotID: snapshotID, RepositoryRef: repositoryRef}
	table, err := b.collect(ctx, snapshotID, files, result)
	if err != nil {
		_ = b.store.FailSnapshot(ctx, snapshotID)
		return nil, err
	}
	if err := b.resolve(ctx, snapshotID, files, table, result); err != nil {
		_ = b.store.FailSnapshot(ctx, snapshotID)
		return nil, err
	}
	b.embedSymbols(ctx, snapshotID, files, table, result)

	result.Complete = len(result.ErroredFiles) == 0
	if err := b.store.CommitSnapshot(ctx, snapshotID, result.Complete,
		result.FileCount, result.SymbolCount, len(result.ErroredFiles)); err != nil {
		return nil, err
	}
	b.logger.Info("Build finished", logging.Fields{
		"snapshot": snapshotID, "files": result.FileCount,
		"symbols": result.SymbolCount, "edges": result.EdgeCount,
		"errored": len(result.ErroredFiles),
	})
	return result, nil
}

// collect is phase one: file and symbol nodes, containment edges, and the
// symbol table. Files are processed in path order so two builds of the same
// input produce graphs isomorphic under qualified-name mapping.
func (b *Builder) collect(ctx context.Context, snapshotID string, files []parse.ParsedFile, result *CommitResult) (*symbolTable, error) {
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	table := &symbolTable{
		byQualified:  make(map[string]string),
		byBare:       make(map[string][]string),
		fileIDByPath: make(map[string]string),
		moduleToPath: make(map[string]string),
	}

	for i := range files {
		f := &files[i]
		if f.Errored() {
			result.ErroredFiles = append(result.ErroredFiles, f.Path)
			b.logger.Warn("File errored, continuing", logging.Fields{"path": f.Path, "error": f.Err})
			continue
		}
		result.FileCount++

		fileID, err := b.store.UpsertNode(ctx, model.Node{
			ID:            uuid.New().String(),
			SnapshotID:    snapshotID,
			Kind:          model.NodeFile,
			Name:          f.Path,
			QualifiedName: f.Path,
			Span:          model.Span{Path: f.Path},
		})
		if err != nil {
			return nil, err
		}
		table.fileIDByPath[f.Path] = fileID
		table.byQualified[f.Path] = fileID
		registerModule(table, f.Path, b.logger)

		for _, def := range f.Symbols {
			qname := model.QualifiedName(f.Path, def.DottedPath())
			id, err := b.store.UpsertNode(ctx, model.Node{
				ID:            uuid.New().String(),
				SnapshotID:    snapshotID,
				Kind:          def.Kind,
				Name:          def.Name,
				QualifiedName: qname,
				Span:          model.Span{Path: f.Path, StartLine: def.StartLine, EndLine: def.EndLine},
				Signature:     def.Signature,
				Docstring:     def.Docstring,
				ContentHash:   def.ContentHash,
			})
			if err != nil {
				return nil, err
			}
			if _, dup := table.byQualified[qname]; !dup {
				result.SymbolCount++
				table.byBare[def.Name] = append(table.byBare[def.Name], id)
			}
			table.byQualified[qname] = id
		}

		// Containment edges: each definition hangs off its nearest enclosing
		// structural node, the file for top-level definitions.
		for _, def := range f.Symbols {
			childID := table.byQualified[model.QualifiedName(f.Path, def.DottedPath())]
			parentID := fileID
			if def.Container != "" {
				if id, ok := table.byQualified[model.QualifiedName(f.Path, def.Container)]; ok {
					parentID = id
				}
			}
			if err := b.upsertEdge(ctx, result, model.Edge{
				SnapshotID: snapshotID,
				Kind:       model.EdgeContains,
				SourceID:   parentID,
				TargetID:   childID,
			}); err != nil {
				return nil, err
			}
		}
	}
	return table, nil
}

// resolve is phase two: imports, calls and endpoints against the complete
// symbol table.
func (b *Builder) resolve(ctx context.Context, snapshotID string, files []parse.ParsedFile, table *symbolTable, result *CommitResult) error {
	for i := range files {
		f := &files[i]
		if f.Errored() {
			continue
		}
		fileID := table.fileIDByPath[f.Path]
		importTargets := make(map[string]string) // local import name -> target file path

		for _, imp := range f.Imports {
			targetPath, ok := resolveImport(table, f.Path, imp)
			edge := model.Edge{
				SnapshotID: snapshotID,
				Kind:       model.EdgeImports,
				SourceID:   fileID,
				Resolution: model.ResolutionUnresolved,
				CallSite:   &model.Span{Path: f.Path, StartLine: imp.Line, EndLine: imp.Line},
			}
			if ok {
				edge.Resolution = model.ResolutionResolved
				edge.TargetID = table.fileIDByPath[targetPath]
				result.ResolvedImports++
				importTargets[importLocalName(imp.Module, imp.Alias)] = targetPath
			} else {
				result.UnresolvedImports++
			}
			if err := b.upsertEdge(ctx, result, edge); err != nil {
				return err
			}
		}

		for _, call := range f.Calls {
			callerID, ok := table.byQualified[model.QualifiedName(f.Path, call.Caller)]
			if !ok {
				continue
			}
			targets, ambiguous := resolveCall(table, f.Path, importTargets, call.Callee)
			for _, targetID := range targets {
				if err := b.upsertEdge(ctx, result, model.Edge{
					SnapshotID: snapshotID,
					Kind:       model.EdgeCalls,
					SourceID:   callerID,
					TargetID:   targetID,
					Ambiguous:  ambiguous,
					CallSite:   &model.Span{Path: f.Path, StartLine: call.Line, EndLine: call.Line},
				}); err != nil {
					return err
				}
			}
			if len(targets) > 0 {
				if ambiguous {
					result.AmbiguousCalls++
				} else {
					result.ResolvedCalls++
				}
			}
		}

		for _, route := range f.Routes {
			handlerID, ok := table.byQualified[model.QualifiedName(f.Path, route.Handler)]
			if !ok {
				continue
			}
			if err := b.upsertEdge(ctx, result, model.Edge{
				SnapshotID: snapshotID,
				Kind:       model.EdgeDefinesEndpoint,
				SourceID:   handlerID,
				Endpoint:   &model.Endpoint{Method: route.Method, PathTemplate: route.PathTemplate},
			}); err != nil {
				return err
			}
			result.Endpoints++
		}
	}
	return nil
}

func (b *Builder) upsertEdge(ctx context.Context, result *CommitResult, e model.Edge) error {
	if err := b.store.UpsertEdge(ctx, e); err != nil {
		return err
	}
	result.EdgeCount++
	return nil
}

// embedSymbols persists embedding vectors for definable symbols. The
// embedding service is best-effort: unavailability degrades the snapshot to
// lexical/structural search and is reported on the commit result.
func (b *Builder) embedSymbols(ctx context.Context, snapshotID string, files []parse.ParsedFile, table *symbolTable, result *CommitResult) {
	if b.embedder == nil {
		result.EmbeddingSkipped = "no embedder configured"
		return
	}

	const batchSize = 64
	var texts []string
	var ids []string
	for _, f := range files {
		if f.Errored() {
			continue
		}
		for _, def := range f.Symbols {
			id, ok := table.byQualified[model.QualifiedName(f.Path, def.DottedPath())]
			if !ok {
				continue
			}
			ids = append(ids, id)
			texts = append(texts, embeddingText(f.Path, def))
		}
	}

	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		vectors, err := b.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			result.EmbeddingSkipped = err.Error()
			b.logger.Warn("Embedding degraded, snapshot indexed without vectors", logging.Fields{
				"snapshot": snapshotID, "error": err.Error(),
			})
			return
		}
		for i, vec := range vectors {
			if err := b.store.UpsertEmbedding(ctx, snapshotID, ids[start+i], vec); err != nil {
				result.EmbeddingSkipped = err.Error()
				return
			}
			result.EmbeddedSymbols++
		}
	}
}

// embeddingText is what gets vectorized per symbol: path-qualified name,
// signature and docstring.
func embeddingText(path string, def parse.SymbolDef) string {
	var sb strings.Builder
	sb.WriteString(path)
	sb.WriteString(" ")
	sb.WriteString(def.DottedPath())
	if def.Signature != "" {
		sb.WriteString("\n")
		sb.WriteString(def.Signature)
	}
	if def.Docstring != "" {
		sb.WriteString("\n")
		sb.WriteString(def.Docstring)
	}
	return sb.String()
}
