package store

import (
	"context"
	"strings"

	"ckg/internal/errors"
	"ckg/internal/model"
)

// ScoredNode is a node with a retrieval score. Higher is better.
type ScoredNode struct {
	Node  model.Node `json:"node"`
	Score float64    `json:"score"`
}

// LexicalSearch runs FTS5 term-overlap search over symbol names, qualified
// names, docstrings and signatures within one snapshot, ranked by bm25.
// Names weigh more than docstrings. An empty or unmatchable query returns an
// empty result, not an error.
func (s *Store) LexicalSearch(ctx context.Context, snapshotID, query string, limit int) ([]ScoredNode, error) {
	if err := s.RequireCommitted(ctx, snapshotID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	match := buildFTSQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT `+prefixedNodeColumns("n")+`,
			bm25(node_fts, 2.0, 1.5, 0.5, 1.0) AS rank
		FROM node_fts f
		JOIN nodes n ON n.snapshot_id = f.snapshot_id AND n.id = f.node_id
		WHERE node_fts MATCH ? AND f.snapshot_id = ?
		ORDER BY rank, n.qualified_name
		LIMIT ?`,
		match, snapshotID, limit)
	if err != nil {
		// FTS5 rejects some token patterns outright; treat that as no match.
		if strings.Contains(err.Error(), "fts5") {
			return nil, nil
		}
		return nil, errors.Wrap(errors.InternalError, "lexical search", err)
	}
	defer rows.Close()

	var out []ScoredNode
	for rows.Next() {
		var n model.Node
		var kind string
		var rank float64
		if err := rows.Scan(&n.SnapshotID, &n.ID, &kind, &n.Name, &n.QualifiedName,
			&n.Span.Path, &n.Span.StartLine, &n.Span.EndLine, &n.Signature, &n.Docstring,
			&n.ContentHash, &rank); err != nil {
			return nil, errors.Wrap(errors.InternalError, "scan lexical result", err)
		}
		n.Kind = model.NodeKind(kind)
		// bm25 returns negative scores, lower is better; flip so callers see
		// higher-is-better.
		out = append(out, ScoredNode{Node: n, Score: -rank})
	}
	return out, rows.Err()
}

// buildFTSQuery turns free text into an FTS5 OR-query of quoted terms, so
// punctuation in identifiers cannot break query syntax.
func buildFTSQuery(query string) string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '.', ',', '(', ')', '[', ']', '{', '}', ':', ';', '"', '\'':
			return true
		}
		return false
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, "")
		if f == "" {
			continue
		}
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " OR ")
}
