package store

import (
	"context"
	"testing"

	"ckg/internal/errors"
	"ckg/internal/logging"
	"ckg/internal/model"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(t.TempDir(), logging.NewNop())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	st, err := New(db, logging.NewNop())
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(st.Close)
	return st
}

func mustNode(t *testing.T, st *Store, snapshotID, id, qname string, kind model.NodeKind) string {
	t.Helper()
	path, _ := model.SplitQualifiedName(qname)
	nodeID, err := st.UpsertNode(context.Background(), model.Node{
		ID:            id,
		SnapshotID:    snapshotID,
		Kind:          kind,
		Name:          model.BareName(qname),
		QualifiedName: qname,
		Span:          model.Span{Path: path, StartLine: 1, EndLine: 2},
	})
	if err != nil {
		t.Fatalf("upsert node %s: %v", qname, err)
	}
	return nodeID
}

func TestSnapshotLifecycle(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	if err := st.CreateSnapshot(ctx, "snap-1", "repo@main"); err != nil {
		t.Fatalf("create snapshot: %v", err)
	}

	// Pending snapshots must be invisible to readers.
	if _, err := st.ListNodes(ctx, "snap-1"); !errors.HasCode(err, errors.SnapshotNotCommitted) {
		t.Errorf("ListNodes on pending snapshot: got %v, want SNAPSHOT_NOT_COMMITTED", err)
	}

	mustNode(t, st, "snap-1", "n1", "a.py:f", model.NodeFunction)

	if err := st.CommitSnapshot(ctx, "snap-1", true, 1, 1, 0); err != nil {
		t.Fatalf("commit snapshot: %v", err)
	}

	nodes, err := st.ListNodes(ctx, "snap-1")
	if err != nil {
		t.Fatalf("ListNodes after commit: %v", err)
	}
	if len(nodes) != 1 || nodes[0].QualifiedName != "a.py:f" {
		t.Errorf("unexpected nodes after commit: %+v", nodes)
	}

	// Committing twice must fail: the committed marker is terminal.
	if err := st.CommitSnapshot(ctx, "snap-1", true, 1, 1, 0); !errors.HasCode(err, errors.SnapshotNotFound) {
		t.Errorf("double commit: got %v, want SNAPSHOT_NOT_FOUND", err)
	}
}

func TestSnapshotOneWriter(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	if err := st.CreateSnapshot(ctx, "snap-1", "repo@main"); err != nil {
		t.Fatalf("create snapshot: %v", err)
	}
	err := st.CreateSnapshot(ctx, "snap-1", "repo@main")
	if !errors.HasCode(err, errors.ConcurrentBuildConflict) {
		t.Errorf("second writer: got %v, want CONCURRENT_BUILD_CONFLICT", err)
	}
}

func TestFailedSnapshotNeverReadable(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	if err := st.CreateSnapshot(ctx, "snap-1", "repo@main"); err != nil {
		t.Fatalf("create snapshot: %v", err)
	}
	if err := st.FailSnapshot(ctx, "snap-1"); err != nil {
		t.Fatalf("fail snapshot: %v", err)
	}
	if err := st.RequireCommitted(ctx, "snap-1"); !errors.HasCode(err, errors.SnapshotNotCommitted) {
		t.Errorf("failed snapshot readable: got %v", err)
	}
}

func TestUpsertNodeKeepsOriginalID(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	if err := st.CreateSnapshot(ctx, "snap-1", "repo@main"); err != nil {
		t.Fatalf("create snapshot: %v", err)
	}
	first := mustNode(t, st, "snap-1", "n1", "a.py:f", model.NodeFunction)
	second := mustNode(t, st, "snap-1", "n2", "a.py:f", model.NodeFunction)
	if first != second {
		t.Errorf("re-upsert minted a new id: %s then %s", first, second)
	}
	if first != "n1" {
		t.Errorf("canonical id = %s, want n1", first)
	}
}

func TestFindByName(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	if err := st.CreateSnapshot(ctx, "snap-1", "repo@main"); err != nil {
		t.Fatalf("create snapshot: %v", err)
	}
	mustNode(t, st, "snap-1", "n1", "api/server.py:handle", model.NodeFunction)
	mustNode(t, st, "snap-1", "n2", "api/client.py:handle", model.NodeFunction)
	mustNode(t, st, "snap-1", "n3", "api/server.py:Server", model.NodeClass)
	if err := st.CommitSnapshot(ctx, "snap-1", true, 2, 3, 0); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tests := []struct {
		pattern string
		want    int
	}{
		{"handle", 2},
		{"api/server.py:*", 2},
		{"Server", 1},  // must not case-fold onto api/server.py paths
		{"SERVER", 0},  // matching is case-sensitive
		{"*Server*", 1},
		{"nosuch", 0},
	}
	for _, tt := range tests {
		nodes, err := st.FindByName(ctx, "snap-1", tt.pattern)
		if err != nil {
			t.Fatalf("FindByName(%q): %v", tt.pattern, err)
		}
		if len(nodes) != tt.want {
			t.Errorf("FindByName(%q) = %d nodes, want %d", tt.pattern, len(nodes), tt.want)
		}
	}
}

func TestLexicalSearch(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	if err := st.CreateSnapshot(ctx, "snap-1", "repo@main"); err != nil {
		t.Fatalf("create snapshot: %v", err)
	}
	_, err := st.UpsertNode(ctx, model.Node{
		ID: "n1", SnapshotID: "snap-1", Kind: model.NodeFunction,
		Name: "parse_manifest", QualifiedName: "ingest.py:parse_manifest",
		Docstring: "Reads the ingestion manifest from disk.",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	_, err = st.UpsertNode(ctx, model.Node{
		ID: "n2", SnapshotID: "snap-1", Kind: model.NodeFunction,
		Name: "render_report", QualifiedName: "report.py:render_report",
		Docstring: "Formats the build report.",
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := st.CommitSnapshot(ctx, "snap-1", true, 2, 2, 0); err != nil {
		t.Fatalf("commit: %v", err)
	}

	hits, err := st.LexicalSearch(ctx, "snap-1", "manifest", 10)
	if err != nil {
		t.Fatalf("LexicalSearch: %v", err)
	}
	if len(hits) != 1 || hits[0].Node.ID != "n1" {
		t.Fatalf("LexicalSearch hits = %+v, want only n1", hits)
	}
	if hits[0].Score <= 0 {
		t.Errorf("score = %f, want > 0", hits[0].Score)
	}
}

func TestNeighborsAndEdges(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	if err := st.CreateSnapshot(ctx, "snap-1", "repo@main"); err != nil {
		t.Fatalf("create snapshot: %v", err)
	}
	a := mustNode(t, st, "snap-1", "a", "a.py:f", model.NodeFunction)
	b := mustNode(t, st, "snap-1", "b", "b.py:g", model.NodeFunction)
	err := st.UpsertEdge(ctx, model.Edge{
		SnapshotID: "snap-1", Kind: model.EdgeCalls, SourceID: a, TargetID: b,
		Resolution: model.ResolutionResolved,
		CallSite:   &model.Span{Path: "a.py", StartLine: 3},
	})
	if err != nil {
		t.Fatalf("upsert edge: %v", err)
	}
	if err := st.CommitSnapshot(ctx, "snap-1", true, 2, 2, 0); err != nil {
		t.Fatalf("commit: %v", err)
	}

	out, err := st.Neighbors(ctx, "snap-1", a, model.EdgeCalls, model.DirectionOut)
	if err != nil {
		t.Fatalf("Neighbors out: %v", err)
	}
	if len(out) != 1 || out[0].ID != b {
		t.Errorf("out neighbors = %+v, want [b]", out)
	}

	in, err := st.Neighbors(ctx, "snap-1", b, model.EdgeCalls, model.DirectionIn)
	if err != nil {
		t.Fatalf("Neighbors in: %v", err)
	}
	if len(in) != 1 || in[0].ID != a {
		t.Errorf("in neighbors = %+v, want [a]", in)
	}

	edges, err := st.OutEdges(ctx, "snap-1", a, model.EdgeCalls)
	if err != nil {
		t.Fatalf("OutEdges: %v", err)
	}
	if len(edges) != 1 || edges[0].CallSite == nil || edges[0].CallSite.StartLine != 3 {
		t.Errorf("OutEdges = %+v, want one edge with call site line 3", edges)
	}
}

func TestSubgraphTruncation(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	if err := st.CreateSnapshot(ctx, "snap-1", "repo@main"); err != nil {
		t.Fatalf("create snapshot: %v", err)
	}
	// Chain a -> b -> c -> d.
	ids := make([]string, 4)
	for i, q := range []string{"a.py:f", "b.py:f", "c.py:f", "d.py:f"} {
		ids[i] = mustNode(t, st, "snap-1", q[:1], q, model.NodeFunction)
	}
	for i := 0; i < 3; i++ {
		err := st.UpsertEdge(ctx, model.Edge{
			SnapshotID: "snap-1", Kind: model.EdgeCalls,
			SourceID: ids[i], TargetID: ids[i+1],
		})
		if err != nil {
			t.Fatalf("upsert edge: %v", err)
		}
	}
	if err := st.CommitSnapshot(ctx, "snap-1", true, 4, 4, 0); err != nil {
		t.Fatalf("commit: %v", err)
	}

	g, err := st.Subgraph(ctx, "snap-1", []string{ids[0]}, []model.EdgeKind{model.EdgeCalls}, 2)
	if err != nil {
		t.Fatalf("Subgraph: %v", err)
	}
	if len(g.Nodes) != 3 {
		t.Errorf("subgraph nodes = %d, want 3 (a, b, c)", len(g.Nodes))
	}
	if len(g.TruncatedIDs) == 0 {
		t.Error("expected truncated frontier at depth 2")
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	if err := st.CreateSnapshot(ctx, "snap-1", "repo@main"); err != nil {
		t.Fatalf("create snapshot: %v", err)
	}
	mustNode(t, st, "snap-1", "n1", "a.py:f", model.NodeFunction)
	vec := []float32{0.25, -1.5, 3.0}
	if err := st.UpsertEmbedding(ctx, "snap-1", "n1", vec); err != nil {
		t.Fatalf("upsert embedding: %v", err)
	}
	if err := st.CommitSnapshot(ctx, "snap-1", true, 1, 1, 0); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var got []float32
	err := st.Embeddings(ctx, "snap-1", func(nodeID string, vector []float32) error {
		if nodeID != "n1" {
			t.Errorf("node id = %s, want n1", nodeID)
		}
		got = vector
		return nil
	})
	if err != nil {
		t.Fatalf("Embeddings: %v", err)
	}
	if len(got) != len(vec) {
		t.Fatalf("vector length = %d, want %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("vector[%d] = %f, want %f", i, got[i], vec[i])
		}
	}
}
