package store

import (
	"context"
	"database/sql"
	"strings"

	"ckg/internal/errors"
	"ckg/internal/model"
)

// UpsertEdge writes an edge. Idempotent on the edge identity (snapshot, kind,
// endpoints, call line): re-processing a file within one build overwrites
// rather than duplicates.
func (s *Store) UpsertEdge(ctx context.Context, e model.Edge) error {
	if err := e.Validate(); err != nil {
		return errors.Wrap(errors.InvalidArgument, "invalid edge", err)
	}
	var callPath string
	var callLine int
	if e.CallSite != nil {
		callPath = e.CallSite.Path
		callLine = e.CallSite.StartLine
	}
	var epMethod, epPath string
	if e.Endpoint != nil {
		epMethod = e.Endpoint.Method
		epPath = e.Endpoint.PathTemplate
	}
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO edges (snapshot_id, kind, source_id, target_id, resolution, ambiguous, call_path, call_line, endpoint_method, endpoint_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (snapshot_id, kind, source_id, target_id, call_line) DO UPDATE SET
			resolution = excluded.resolution,
			ambiguous = excluded.ambiguous,
			call_path = excluded.call_path,
			endpoint_method = excluded.endpoint_method,
			endpoint_path = excluded.endpoint_path`,
		e.SnapshotID, string(e.Kind), e.SourceID, e.TargetID, string(e.Resolution),
		boolToInt(e.Ambiguous), callPath, callLine, epMethod, epPath,
	)
	if err != nil {
		return errors.Wrap(errors.InternalError, "upsert edge", err)
	}
	return nil
}

const edgeColumns = `snapshot_id, kind, source_id, target_id, resolution, ambiguous, call_path, call_line, endpoint_method, endpoint_path`

// Neighbors returns the nodes adjacent to nodeID over one edge kind, in the
// given direction (out follows source->target, in follows target->source).
func (s *Store) Neighbors(ctx context.Context, snapshotID, nodeID string, kind model.EdgeKind, dir model.Direction) ([]model.Node, error) {
	if err := s.RequireCommitted(ctx, snapshotID); err != nil {
		return nil, err
	}
	var query string
	switch dir {
	case model.DirectionOut:
		query = `
			SELECT ` + prefixedNodeColumns("n") + `
			FROM edges e JOIN nodes n ON n.snapshot_id = e.snapshot_id AND n.id = e.target_id
			WHERE e.snapshot_id = ? AND e.kind = ? AND e.source_id = ?
			ORDER BY n.qualified_name`
	case model.DirectionIn:
		query = `
			SELECT ` + prefixedNodeColumns("n") + `
			FROM edges e JOIN nodes n ON n.snapshot_id = e.snapshot_id AND n.id = e.source_id
			WHERE e.snapshot_id = ? AND e.kind = ? AND e.target_id = ?
			ORDER BY n.qualified_name`
	default:
		return nil, errors.Newf(errors.InvalidArgument, "unknown direction %q", dir)
	}
	rows, err := s.db.conn.QueryContext(ctx, query, snapshotID, string(kind), nodeID)
	if err != nil {
		return nil, errors.Wrap(errors.InternalError, "neighbors", err)
	}
	defer rows.Close()
	return collectNodes(rows)
}

// OutEdges returns the outgoing edges of nodeID for the given kinds. Used by
// the trace engine, which needs ambiguity flags and call sites, not just
// neighbor nodes.
func (s *Store) OutEdges(ctx context.Context, snapshotID, nodeID string, kinds ...model.EdgeKind) ([]model.Edge, error) {
	return s.edgesByEndpoint(ctx, snapshotID, "source_id", nodeID, kinds)
}

// InEdges returns the incoming edges of nodeID for the given kinds. Used by
// impact analysis for reverse reachability.
func (s *Store) InEdges(ctx context.Context, snapshotID, nodeID string, kinds ...model.EdgeKind) ([]model.Edge, error) {
	return s.edgesByEndpoint(ctx, snapshotID, "target_id", nodeID, kinds)
}

func (s *Store) edgesByEndpoint(ctx context.Context, snapshotID, column, nodeID string, kinds []model.EdgeKind) ([]model.Edge, error) {
	query := `SELECT ` + edgeColumns + ` FROM edges WHERE snapshot_id = ? AND ` + column + ` = ?`
	args := []interface{}{snapshotID, nodeID}
	if len(kinds) > 0 {
		query += ` AND kind IN (?` + strings.Repeat(",?", len(kinds)-1) + `)`
		for _, k := range kinds {
			args = append(args, string(k))
		}
	}
	query += ` ORDER BY kind, target_id, call_line`
	rows, err := s.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.InternalError, "edges by endpoint", err)
	}
	defer rows.Close()
	return collectEdges(rows)
}

// FindEndpoints lists every DEFINES_ENDPOINT edge in the snapshot together
// with its handler node. Feeds trace entry selection.
func (s *Store) FindEndpoints(ctx context.Context, snapshotID string) ([]model.Edge, error) {
	if err := s.RequireCommitted(ctx, snapshotID); err != nil {
		return nil, err
	}
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT `+edgeColumns+` FROM edges WHERE snapshot_id = ? AND kind = ? ORDER BY endpoint_path, endpoint_method`,
		snapshotID, string(model.EdgeDefinesEndpoint))
	if err != nil {
		return nil, errors.Wrap(errors.InternalError, "find endpoints", err)
	}
	defer rows.Close()
	return collectEdges(rows)
}

func scanEdge(row rowScanner) (*model.Edge, error) {
	var e model.Edge
	var kind, resolution, callPath, epMethod, epPath string
	var ambiguous, callLine int
	if err := row.Scan(&e.SnapshotID, &kind, &e.SourceID, &e.TargetID,
		&resolution, &ambiguous, &callPath, &callLine, &epMethod, &epPath); err != nil {
		return nil, err
	}
	e.Kind = model.EdgeKind(kind)
	e.Resolution = model.Resolution(resolution)
	e.Ambiguous = ambiguous != 0
	if callPath != "" || callLine != 0 {
		e.CallSite = &model.Span{Path: callPath, StartLine: callLine, EndLine: callLine}
	}
	if epMethod != "" || epPath != "" {
		e.Endpoint = &model.Endpoint{Method: epMethod, PathTemplate: epPath}
	}
	return &e, nil
}

func collectEdges(rows *sql.Rows) ([]model.Edge, error) {
	var out []model.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, errors.Wrap(errors.InternalError, "scan edge", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func prefixedNodeColumns(alias string) string {
	cols := strings.Split(nodeColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}
