package retrieval

import (
	"math"
	"testing"

	"ckg/internal/model"
	"ckg/internal/store"
)

func scored(id string, score float64) store.ScoredNode {
	return store.ScoredNode{
		Node:  model.Node{ID: id, QualifiedName: id, Kind: model.NodeFunction},
		Score: score,
	}
}

func TestFuseRRFAllSetsBeatSingleSet(t *testing.T) {
	// "everywhere" is rank 1 in all three sets; "lexonly" is rank 1 in one.
	sets := map[Source][]store.ScoredNode{
		SourceLexical:    {scored("lexonly", 9.0), scored("everywhere", 8.0)},
		SourceVector:     {scored("everywhere", 0.99)},
		SourceStructural: {scored("everywhere", 2.0)},
	}

	results := FuseRRF(sets, DefaultFusionConfig(), 10)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Node.ID != "everywhere" {
		t.Errorf("top result = %s, want everywhere", results[0].Node.ID)
	}
	if len(results[0].MatchedSets) != 3 {
		t.Errorf("matched sets = %v, want all three", results[0].MatchedSets)
	}

	// everywhere: 1/(2+60) + 1/(1+60) + 1/(1+60); lexonly: 1/(1+60).
	wantTop := 1.0/62 + 1.0/61 + 1.0/61
	if math.Abs(results[0].Score-wantTop) > 1e-12 {
		t.Errorf("top score = %v, want %v", results[0].Score, wantTop)
	}
	wantSecond := 1.0 / 61
	if math.Abs(results[1].Score-wantSecond) > 1e-12 {
		t.Errorf("second score = %v, want %v", results[1].Score, wantSecond)
	}
}

func TestFuseRRFTieBreaks(t *testing.T) {
	// a scores 1.0/61 from one set; b scores 0.5/61 + 0.5/61, exactly the
	// same, but from two sets.
	sets := map[Source][]store.ScoredNode{
		SourceLexical:    {scored("a", 5.0)},
		SourceVector:     {scored("b", 0.9)},
		SourceStructural: {scored("b", 2.0)},
	}
	cfg := FusionConfig{
		RRFConstant: 60,
		Weights: map[Source]float64{
			SourceLexical:    1.0,
			SourceVector:     0.5,
			SourceStructural: 0.5,
		},
	}
	results := FuseRRF(sets, cfg, 10)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if results[0].Node.ID != "b" {
		t.Errorf("presence-count tiebreak failed: top = %s, want b", results[0].Node.ID)
	}

	// Identical score and presence: node id orders deterministically.
	sets = map[Source][]store.ScoredNode{
		SourceLexical: {scored("z", 5.0)},
		SourceVector:  {scored("m", 5.0)},
	}
	results = FuseRRF(sets, DefaultFusionConfig(), 10)
	if results[0].Node.ID != "m" || results[1].Node.ID != "z" {
		t.Errorf("id tiebreak = [%s, %s], want [m, z]", results[0].Node.ID, results[1].Node.ID)
	}
}

func TestFuseRRFMissingSetContributesNothing(t *testing.T) {
	// Only the lexical set ran (vector degraded, structural empty).
	sets := map[Source][]store.ScoredNode{
		SourceLexical: {scored("a", 1.0)},
	}
	results := FuseRRF(sets, DefaultFusionConfig(), 10)
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if len(results[0].MatchedSets) != 1 || results[0].MatchedSets[0] != SourceLexical {
		t.Errorf("matched sets = %v, want [lexical]", results[0].MatchedSets)
	}
}

func TestFuseRRFTruncatesToK(t *testing.T) {
	set := make([]store.ScoredNode, 10)
	for i := range set {
		set[i] = scored(string(rune('a'+i)), float64(10-i))
	}
	results := FuseRRF(map[Source][]store.ScoredNode{SourceLexical: set}, DefaultFusionConfig(), 3)
	if len(results) != 3 {
		t.Errorf("results = %d, want 3", len(results))
	}
	if results[0].Node.ID != "a" {
		t.Errorf("top = %s, want a", results[0].Node.ID)
	}
}
