package store

import (
	"fmt"

	"github.com/klauspost/compress/zstd"

	"ckg/internal/logging"
)

// Store provides typed access to the graph database. Write methods are
// intended for the graph builder only; the read-side engines use the query
// methods, which all verify the target snapshot is committed.
type Store struct {
	db     *DB
	logger *logging.Logger
	enc    *zstd.Encoder
	dec    *zstd.Decoder
}

// New creates a Store over an open database.
func New(db *DB, logger *logging.Logger) (*Store, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &Store{db: db, logger: logger, enc: enc, dec: dec}, nil
}

// Close releases the store's resources. The underlying DB is closed by its
// owner.
func (s *Store) Close() {
	_ = s.enc.Close()
	s.dec.Close()
}
