package retrieval

import (
	"sort"

	"ckg/internal/model"
	"ckg/internal/store"
)

// Source identifies one candidate set of the hybrid search.
type Source string

const (
	SourceLexical    Source = "lexical"
	SourceVector     Source = "vector"
	SourceStructural Source = "structural"
)

// Result is one fused search hit. MatchedSets lists the candidate sets the
// node appeared in, which is also the tiebreaker after the fused score.
type Result struct {
	Node        model.Node `json:"node"`
	Score       float64    `json:"score"`
	MatchedSets []Source   `json:"matchedSets"`
}

// FusionConfig controls reciprocal-rank fusion.
type FusionConfig struct {
	// RRFConstant is the c in 1/(rank+c); larger flattens rank differences.
	RRFConstant int
	// Weights scales each set's reciprocal-rank contribution.
	Weights map[Source]float64
}

// DefaultFusionConfig gives every set equal weight with the conventional
// c=60.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		RRFConstant: 60,
		Weights: map[Source]float64{
			SourceLexical:    1.0,
			SourceVector:     1.0,
			SourceStructural: 1.0,
		},
	}
}

// FuseRRF combines per-set rankings by weighted reciprocal rank: a result's
// fused score is sum over the sets containing it of w_s/(rank+c), rank
// 1-based. Ties break by presence count (more sets wins), then by node id
// for determinism. Sets the caller did not run simply contribute nothing.
func FuseRRF(sets map[Source][]store.ScoredNode, cfg FusionConfig, k int) []Result {
	c := cfg.RRFConstant
	if c <= 0 {
		c = 60
	}

	type acc struct {
		node    model.Node
		score   float64
		matched []Source
	}
	byID := make(map[string]*acc)

	for _, source := range []Source{SourceLexical, SourceVector, SourceStructural} {
		ranked, ok := sets[source]
		if !ok {
			continue
		}
		weight := cfg.Weights[source]
		if weight == 0 {
			weight = 1.0
		}
		for i, sn := range ranked {
			a, ok := byID[sn.Node.ID]
			if !ok {
				a = &acc{node: sn.Node}
				byID[sn.Node.ID] = a
			}
			a.score += weight / float64(i+1+c)
			a.matched = append(a.matched, source)
		}
	}

	out := make([]Result, 0, len(byID))
	for _, a := range byID {
		out = append(out, Result{Node: a.node, Score: a.score, MatchedSets: a.matched})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if len(out[i].MatchedSets) != len(out[j].MatchedSets) {
			return len(out[i].MatchedSets) > len(out[j].MatchedSets)
		}
		return out[i].Node.ID < out[j].Node.ID
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
