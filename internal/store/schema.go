package store

import (
	"database/sql"
	"fmt"

	"ckg/internal/logging"
)

const currentSchemaVersion = 1

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		repository_ref TEXT NOT NULL,
		status TEXT NOT NULL,
		complete INTEGER NOT NULL DEFAULT 0,
		file_count INTEGER NOT NULL DEFAULT 0,
		symbol_count INTEGER NOT NULL DEFAULT 0,
		errored_files INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		committed_at TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS nodes (
		snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		id TEXT NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		qualified_name TEXT NOT NULL,
		path TEXT NOT NULL DEFAULT '',
		start_line INTEGER NOT NULL DEFAULT 0,
		end_line INTEGER NOT NULL DEFAULT 0,
		signature TEXT NOT NULL DEFAULT '',
		docstring TEXT NOT NULL DEFAULT '',
		content_hash TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (snapshot_id, qualified_name)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_nodes_id ON nodes(snapshot_id, id)`,
	`CREATE INDEX IF NOT EXISTS idx_nodes_name ON nodes(snapshot_id, name)`,
	`CREATE TABLE IF NOT EXISTS edges (
		snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL DEFAULT '',
		resolution TEXT NOT NULL DEFAULT '',
		ambiguous INTEGER NOT NULL DEFAULT 0,
		call_path TEXT NOT NULL DEFAULT '',
		call_line INTEGER NOT NULL DEFAULT 0,
		endpoint_method TEXT NOT NULL DEFAULT '',
		endpoint_path TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (snapshot_id, kind, source_id, target_id, call_line)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(snapshot_id, source_id, kind)`,
	`CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(snapshot_id, target_id, kind)`,
	`CREATE VIRTUAL TABLE IF NOT EXISTS node_fts USING fts5(
		name, qualified_name, docstring, signature,
		snapshot_id UNINDEXED, node_id UNINDEXED
	)`,
	`CREATE TABLE IF NOT EXISTS embeddings (
		snapshot_id TEXT NOT NULL REFERENCES snapshots(id) ON DELETE CASCADE,
		node_id TEXT NOT NULL,
		dim INTEGER NOT NULL,
		vector BLOB NOT NULL,
		PRIMARY KEY (snapshot_id, node_id)
	)`,
}

func (db *DB) initializeSchema() error {
	return db.WithTx(func(tx *sql.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("create schema: %w", err)
			}
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", currentSchemaVersion); err != nil {
			return err
		}
		db.logger.Info("Graph schema initialized", logging.Fields{"version": currentSchemaVersion})
		return nil
	})
}

func (db *DB) runMigrations() error {
	version, err := db.schemaVersion()
	if err != nil {
		return err
	}
	if version == currentSchemaVersion {
		return nil
	}
	if version == 0 {
		return db.initializeSchema()
	}
	// Migrations are appended here as the schema evolves.
	return fmt.Errorf("unsupported schema version %d", version)
}

func (db *DB) schemaVersion() (int, error) {
	var name string
	err := db.conn.QueryRow(
		`SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'`,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var version int
	err = db.conn.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}
