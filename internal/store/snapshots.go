package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"ckg/internal/errors"
	"ckg/internal/logging"
	"ckg/internal/model"
)

// CreateSnapshot registers a new pending snapshot. Snapshot creation is the
// one-writer guard: inserting an id that already exists fails fast with
// CONCURRENT_BUILD_CONFLICT instead of interleaving writes.
func (s *Store) CreateSnapshot(ctx context.Context, id, repositoryRef string) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO snapshots (id, repository_ref, status, created_at)
		VALUES (?, ?, ?, ?)`,
		id, repositoryRef, string(model.SnapshotPending), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Newf(errors.ConcurrentBuildConflict,
				"snapshot %s already has a writer", id)
		}
		return errors.Wrap(errors.InternalError, "create snapshot", err)
	}
	return nil
}

// CommitSnapshot writes the terminal committed marker with the build's
// completeness report. Until this runs, read-side engines reject the
// snapshot.
func (s *Store) CommitSnapshot(ctx context.Context, id string, complete bool, fileCount, symbolCount, erroredFiles int) error {
	res, err := s.db.conn.ExecContext(ctx, `
		UPDATE snapshots
		SET status = ?, complete = ?, file_count = ?, symbol_count = ?, errored_files = ?, committed_at = ?
		WHERE id = ? AND status = ?`,
		string(model.SnapshotCommitted), boolToInt(complete), fileCount, symbolCount, erroredFiles,
		time.Now().UTC().Format(time.RFC3339), id, string(model.SnapshotPending),
	)
	if err != nil {
		return errors.Wrap(errors.InternalError, "commit snapshot", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errors.Newf(errors.SnapshotNotFound, "no pending snapshot %s to commit", id)
	}
	s.logger.Info("Snapshot committed", logging.Fields{
		"snapshot": id, "complete": complete, "files": fileCount,
		"symbols": symbolCount, "errored": erroredFiles,
	})
	return nil
}

// FailSnapshot marks a snapshot as failed. Failed snapshots are never
// readable but remain recorded so the failure is not silent.
func (s *Store) FailSnapshot(ctx context.Context, id string) error {
	_, err := s.db.conn.ExecContext(ctx,
		`UPDATE snapshots SET status = ? WHERE id = ?`,
		string(model.SnapshotFailed), id,
	)
	if err != nil {
		return errors.Wrap(errors.InternalError, "fail snapshot", err)
	}
	return nil
}

// GetSnapshot returns the snapshot record regardless of status.
func (s *Store) GetSnapshot(ctx context.Context, id string) (*model.Snapshot, error) {
	row := s.db.conn.QueryRowContext(ctx, `
		SELECT id, repository_ref, status, complete, file_count, symbol_count, errored_files, created_at, committed_at
		FROM snapshots WHERE id = ?`, id)
	return scanSnapshot(row)
}

// ListSnapshots returns snapshots, newest first, optionally filtered by
// repository reference.
func (s *Store) ListSnapshots(ctx context.Context, repositoryRef string) ([]model.Snapshot, error) {
	query := `
		SELECT id, repository_ref, status, complete, file_count, symbol_count, errored_files, created_at, committed_at
		FROM snapshots`
	args := []interface{}{}
	if repositoryRef != "" {
		query += ` WHERE repository_ref = ?`
		args = append(args, repositoryRef)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.InternalError, "list snapshots", err)
	}
	defer rows.Close()

	var out []model.Snapshot
	for rows.Next() {
		snap, err := scanSnapshotRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

// RequireCommitted verifies the snapshot exists and carries the committed
// marker. All read paths go through this so a partially built snapshot is
// never observable.
func (s *Store) RequireCommitted(ctx context.Context, id string) error {
	snap, err := s.GetSnapshot(ctx, id)
	if err != nil {
		return err
	}
	if snap.Status != model.SnapshotCommitted {
		return errors.Newf(errors.SnapshotNotCommitted,
			"snapshot %s is %s, not committed", id, snap.Status)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row *sql.Row) (*model.Snapshot, error) {
	snap, err := scanSnapshotRows(row)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.SnapshotNotFound, "snapshot not found")
	}
	return snap, err
}

func scanSnapshotRows(row rowScanner) (*model.Snapshot, error) {
	var snap model.Snapshot
	var status string
	var complete int
	if err := row.Scan(&snap.ID, &snap.RepositoryRef, &status, &complete,
		&snap.FileCount, &snap.SymbolCount, &snap.ErroredFiles,
		&snap.CreatedAt, &snap.CommittedAt); err != nil {
		return nil, err
	}
	snap.Status = model.SnapshotStatus(status)
	snap.Complete = complete != 0
	return &snap, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
