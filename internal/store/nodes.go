package store

import (
	"context"
	"database/sql"
	"strings"

	"ckg/internal/errors"
	"ckg/internal/model"
)

// UpsertNode writes a node, idempotent per (snapshot_id, qualified_name):
// re-processing the same definition within one build overwrites attributes
// but keeps the originally minted node id, so edges already written against
// it stay valid. Returns the canonical node id.
func (s *Store) UpsertNode(ctx context.Context, n model.Node) (string, error) {
	if !n.Kind.IsDefinable() && n.Kind != model.NodeRepository && n.Kind != model.NodeSnapshot {
		return "", errors.Newf(errors.InvalidArgument, "unknown node kind %q", n.Kind)
	}
	var id string
	err := s.db.WithTx(func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO nodes (snapshot_id, id, kind, name, qualified_name, path, start_line, end_line, signature, docstring, content_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (snapshot_id, qualified_name) DO UPDATE SET
				kind = excluded.kind,
				name = excluded.name,
				path = excluded.path,
				start_line = excluded.start_line,
				end_line = excluded.end_line,
				signature = excluded.signature,
				docstring = excluded.docstring,
				content_hash = excluded.content_hash
			RETURNING id`,
			n.SnapshotID, n.ID, string(n.Kind), n.Name, n.QualifiedName,
			n.Span.Path, n.Span.StartLine, n.Span.EndLine, n.Signature, n.Docstring, n.ContentHash,
		)
		if err := row.Scan(&id); err != nil {
			return err
		}
		// Keep the FTS mirror in sync with the canonical row.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM node_fts WHERE snapshot_id = ? AND node_id = ?`,
			n.SnapshotID, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO node_fts (name, qualified_name, docstring, signature, snapshot_id, node_id)
			VALUES (?, ?, ?, ?, ?, ?)`,
			n.Name, n.QualifiedName, n.Docstring, n.Signature, n.SnapshotID, id,
		)
		return err
	})
	if err != nil {
		return "", errors.Wrap(errors.InternalError, "upsert node", err)
	}
	return id, nil
}

const nodeColumns = `snapshot_id, id, kind, name, qualified_name, path, start_line, end_line, signature, docstring, content_hash`

// GetNode fetches a node by id within a committed snapshot.
func (s *Store) GetNode(ctx context.Context, snapshotID, nodeID string) (*model.Node, error) {
	if err := s.RequireCommitted(ctx, snapshotID); err != nil {
		return nil, err
	}
	return s.getNodeUnchecked(ctx, snapshotID, nodeID)
}

func (s *Store) getNodeUnchecked(ctx context.Context, snapshotID, nodeID string) (*model.Node, error) {
	row := s.db.conn.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE snapshot_id = ? AND id = ?`,
		snapshotID, nodeID)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.SymbolNotFound, "node %s not found in snapshot %s", nodeID, snapshotID)
	}
	if err != nil {
		return nil, errors.Wrap(errors.InternalError, "get node", err)
	}
	return n, nil
}

// GetNodeByQualifiedName fetches a node by its snapshot-unique qualified name.
func (s *Store) GetNodeByQualifiedName(ctx context.Context, snapshotID, qname string) (*model.Node, error) {
	if err := s.RequireCommitted(ctx, snapshotID); err != nil {
		return nil, err
	}
	row := s.db.conn.QueryRowContext(ctx,
		`SELECT `+nodeColumns+` FROM nodes WHERE snapshot_id = ? AND qualified_name = ?`,
		snapshotID, qname)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.SymbolNotFound, "symbol %q not found in snapshot %s", qname, snapshotID)
	}
	if err != nil {
		return nil, errors.Wrap(errors.InternalError, "get node by name", err)
	}
	return n, nil
}

// FindByName returns nodes whose name or qualified name matches the pattern.
// '*' in the pattern is a wildcard; a bare pattern matches as a substring of
// the qualified name or exactly as the bare name. Matching is case-sensitive:
// GLOB rather than LIKE, whose ASCII case folding would conflate "Server"
// with "server.py".
func (s *Store) FindByName(ctx context.Context, snapshotID, pattern string) ([]model.Node, error) {
	if err := s.RequireCommitted(ctx, snapshotID); err != nil {
		return nil, err
	}
	glob := pattern
	if !strings.Contains(pattern, "*") {
		glob = "*" + glob + "*"
	}
	rows, err := s.db.conn.QueryContext(ctx, `
		SELECT `+nodeColumns+` FROM nodes
		WHERE snapshot_id = ? AND (qualified_name GLOB ? OR name = ?)
		ORDER BY qualified_name`,
		snapshotID, glob, pattern)
	if err != nil {
		return nil, errors.Wrap(errors.InternalError, "find by name", err)
	}
	defer rows.Close()
	return collectNodes(rows)
}

// ListNodes returns every node of the given kinds in the snapshot, in
// qualified-name order. Empty kinds means all nodes.
func (s *Store) ListNodes(ctx context.Context, snapshotID string, kinds ...model.NodeKind) ([]model.Node, error) {
	if err := s.RequireCommitted(ctx, snapshotID); err != nil {
		return nil, err
	}
	query := `SELECT ` + nodeColumns + ` FROM nodes WHERE snapshot_id = ?`
	args := []interface{}{snapshotID}
	if len(kinds) > 0 {
		query += ` AND kind IN (?` + strings.Repeat(",?", len(kinds)-1) + `)`
		for _, k := range kinds {
			args = append(args, string(k))
		}
	}
	query += ` ORDER BY qualified_name`
	rows, err := s.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.InternalError, "list nodes", err)
	}
	defer rows.Close()
	return collectNodes(rows)
}

func scanNode(row rowScanner) (*model.Node, error) {
	var n model.Node
	var kind string
	if err := row.Scan(&n.SnapshotID, &n.ID, &kind, &n.Name, &n.QualifiedName,
		&n.Span.Path, &n.Span.StartLine, &n.Span.EndLine, &n.Signature, &n.Docstring, &n.ContentHash); err != nil {
		return nil, err
	}
	n.Kind = model.NodeKind(kind)
	return &n, nil
}

func collectNodes(rows *sql.Rows) ([]model.Node, error) {
	var out []model.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, errors.Wrap(errors.InternalError, "scan node", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}
