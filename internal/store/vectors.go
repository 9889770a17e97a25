package store

import (
	"context"
	"encoding/binary"
	"math"

	"ckg/internal/errors"
)

// UpsertEmbedding stores a node's embedding vector. Vectors are encoded as
// little-endian float32 and zstd-compressed; embeddings dominate storage for
// large snapshots.
func (s *Store) UpsertEmbedding(ctx context.Context, snapshotID, nodeID string, vector []float32) error {
	if len(vector) == 0 {
		return errors.New(errors.InvalidArgument, "empty embedding vector")
	}
	blob := s.enc.EncodeAll(encodeVector(vector), nil)
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO embeddings (snapshot_id, node_id, dim, vector)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (snapshot_id, node_id) DO UPDATE SET
			dim = excluded.dim,
			vector = excluded.vector`,
		snapshotID, nodeID, len(vector), blob,
	)
	if err != nil {
		return errors.Wrap(errors.InternalError, "upsert embedding", err)
	}
	return nil
}

// Embeddings streams every stored (node id, vector) pair of a snapshot to fn.
// Iteration stops on the first error fn returns.
func (s *Store) Embeddings(ctx context.Context, snapshotID string, fn func(nodeID string, vector []float32) error) error {
	if err := s.RequireCommitted(ctx, snapshotID); err != nil {
		return err
	}
	rows, err := s.db.conn.QueryContext(ctx,
		`SELECT node_id, dim, vector FROM embeddings WHERE snapshot_id = ? ORDER BY node_id`,
		snapshotID)
	if err != nil {
		return errors.Wrap(errors.InternalError, "list embeddings", err)
	}
	defer rows.Close()

	for rows.Next() {
		var nodeID string
		var dim int
		var blob []byte
		if err := rows.Scan(&nodeID, &dim, &blob); err != nil {
			return errors.Wrap(errors.InternalError, "scan embedding", err)
		}
		raw, err := s.dec.DecodeAll(blob, nil)
		if err != nil {
			return errors.Wrap(errors.InternalError, "decompress embedding", err)
		}
		vector := decodeVector(raw)
		if len(vector) != dim {
			return errors.Newf(errors.InternalError, "embedding for %s has %d dims, expected %d", nodeID, len(vector), dim)
		}
		if err := fn(nodeID, vector); err != nil {
			return err
		}
	}
	return rows.Err()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
