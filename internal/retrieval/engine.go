// Package retrieval answers hybrid search queries over one committed
// snapshot. Lexical, vector and structural candidate sets are produced
// independently and concurrently, truncated per set, and combined by
// weighted reciprocal-rank fusion. The vector set rides on a best-effort
// external embedding service and degrades to nothing when that service is
// slow or down; it never blocks or fails the other two sets.
package retrieval

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"ckg/internal/embed"
	"ckg/internal/errors"
	"ckg/internal/logging"
	"ckg/internal/model"
	"ckg/internal/store"
)

// Options configures the search engine.
type Options struct {
	// PerSetLimit truncates each candidate set before fusion (default 20).
	PerSetLimit int
	// Fusion controls rank combination.
	Fusion FusionConfig
	// VectorWait bounds how long the fusion barrier waits for the vector
	// branch (default 2s).
	VectorWait time.Duration
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		PerSetLimit: 20,
		Fusion:      DefaultFusionConfig(),
		VectorWait:  2 * time.Second,
	}
}

// Engine runs hybrid searches. It is a pure reader: safe for arbitrary
// concurrency against committed snapshots.
type Engine struct {
	store    *store.Store
	embedder embed.Embedder // nil disables the vector set
	logger   *logging.Logger
	opts     Options
}

// NewEngine creates a search engine. embedder may be nil.
func NewEngine(st *store.Store, embedder embed.Embedder, logger *logging.Logger, opts Options) *Engine {
	if opts.PerSetLimit <= 0 {
		opts.PerSetLimit = 20
	}
	if opts.VectorWait <= 0 {
		opts.VectorWait = 2 * time.Second
	}
	return &Engine{store: st, embedder: embedder, logger: logger, opts: opts}
}

// Response is a search result plus the report of which sets actually ran.
// A degraded set is reported, never silently missing.
type Response struct {
	Results  []Result          `json:"results"`
	SetsRun  []Source          `json:"setsRun"`
	Degraded map[Source]string `json:"degraded,omitempty"`
}

// Search returns the fused top-k results for query against one snapshot.
func (e *Engine) Search(ctx context.Context, snapshotID, query string, k int) (*Response, error) {
	if err := e.store.RequireCommitted(ctx, snapshotID); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = 10
	}

	sets := make(map[Source][]store.ScoredNode, 3)
	degraded := make(map[Source]string)

	// The vector branch gets its own deadline so a hung embedding service
	// cannot stall the lexical/structural results.
	vectorCtx, cancelVector := context.WithTimeout(ctx, e.opts.VectorWait)
	defer cancelVector()

	var lexical, structural, vector []store.ScoredNode
	var vectorErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lexical, err = e.store.LexicalSearch(gctx, snapshotID, query, e.opts.PerSetLimit)
		return err
	})
	g.Go(func() error {
		var err error
		structural, err = e.structuralSearch(gctx, snapshotID, query)
		return err
	})
	g.Go(func() error {
		vector, vectorErr = e.vectorSearch(vectorCtx, snapshotID, query)
		return nil // vector failures degrade, they never fail the search
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sets[SourceLexical] = lexical
	sets[SourceStructural] = structural
	if vectorErr != nil {
		degraded[SourceVector] = vectorErr.Error()
		e.logger.Warn("Vector search degraded", logging.Fields{
			"snapshot": snapshotID, "error": vectorErr.Error(),
		})
	} else if e.embedder == nil {
		degraded[SourceVector] = "no embedder configured"
	} else {
		sets[SourceVector] = vector
	}

	resp := &Response{
		Results:  FuseRRF(sets, e.opts.Fusion, k),
		Degraded: degraded,
	}
	for _, src := range []Source{SourceLexical, SourceVector, SourceStructural} {
		if _, ok := sets[src]; ok {
			resp.SetsRun = append(resp.SetsRun, src)
		}
	}
	if len(resp.Degraded) == 0 {
		resp.Degraded = nil
	}
	return resp, nil
}

// vectorSearch embeds the query and ranks stored symbol vectors by cosine
// similarity. Any failure — service down, timeout, dimension mismatch — is
// returned for the caller to degrade on.
func (e *Engine) vectorSearch(ctx context.Context, snapshotID, query string) ([]store.ScoredNode, error) {
	if e.embedder == nil {
		return nil, nil
	}
	vectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, errors.New(errors.DependencyUnavailable, "embedding service returned no query vector")
	}
	queryVec := vectors[0]

	type hit struct {
		nodeID string
		score  float64
	}
	var hits []hit
	err = e.store.Embeddings(ctx, snapshotID, func(nodeID string, vector []float32) error {
		if score := embed.Cosine(queryVec, vector); score > 0 {
			hits = append(hits, hit{nodeID: nodeID, score: score})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].nodeID < hits[j].nodeID
	})
	if len(hits) > e.opts.PerSetLimit {
		hits = hits[:e.opts.PerSetLimit]
	}

	out := make([]store.ScoredNode, 0, len(hits))
	for _, h := range hits {
		n, err := e.store.GetNode(ctx, snapshotID, h.nodeID)
		if err != nil {
			if errors.HasCode(err, errors.SymbolNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, store.ScoredNode{Node: *n, Score: h.score})
	}
	return out, nil
}

// structuralSearch matches query tokens against qualified names and file
// paths, then expands the seed set one hop over CONTAINS and CALLS so
// closely related symbols surface too. Seeds outrank expansions.
func (e *Engine) structuralSearch(ctx context.Context, snapshotID, query string) ([]store.ScoredNode, error) {
	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	seen := make(map[string]store.ScoredNode)
	for _, tok := range tokens {
		nodes, err := e.store.FindByName(ctx, snapshotID, tok)
		if err != nil {
			return nil, err
		}
		for _, n := range nodes {
			if _, ok := seen[n.ID]; !ok {
				seen[n.ID] = store.ScoredNode{Node: n, Score: 2.0}
			}
		}
	}

	// One-hop expansion from the seeds.
	seeds := make([]store.ScoredNode, 0, len(seen))
	for _, sn := range seen {
		seeds = append(seeds, sn)
	}
	for _, seed := range seeds {
		for _, kind := range []model.EdgeKind{model.EdgeContains, model.EdgeCalls} {
			for _, dir := range []model.Direction{model.DirectionOut, model.DirectionIn} {
				nodes, err := e.store.Neighbors(ctx, snapshotID, seed.Node.ID, kind, dir)
				if err != nil {
					return nil, err
				}
				for _, n := range nodes {
					if _, ok := seen[n.ID]; !ok {
						seen[n.ID] = store.ScoredNode{Node: n, Score: 1.0}
					}
				}
			}
		}
	}

	out := make([]store.ScoredNode, 0, len(seen))
	for _, sn := range seen {
		out = append(out, sn)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Node.QualifiedName < out[j].Node.QualifiedName
	})
	if len(out) > e.opts.PerSetLimit {
		out = out[:e.opts.PerSetLimit]
	}
	return out, nil
}

func queryTokens(query string) []string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == ',' || r == '"' || r == '\''
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
