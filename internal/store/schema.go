package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// schemaV1 is the initial schema for the SQLite store.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    subject TEXT,
    seed TEXT NOT NULL,          -- uint64 as decimal text
    created_at TEXT NOT NULL,
    search_config TEXT NOT NULL, -- JSON
    plan TEXT NOT NULL           -- JSON
);
CREATE INDEX IF NOT EXISTS idx_sessions_subject ON sessions(subject);

-- One row per block, in plan order
CREATE TABLE IF NOT EXISTS blocks (
    session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    block INTEGER NOT NULL,
    feedback INTEGER NOT NULL,
    rate REAL NOT NULL,
    distance REAL NOT NULL,
    closest_possible REAL NOT NULL,
    iterations INTEGER NOT NULL,
    converged INTEGER NOT NULL,
    PRIMARY KEY (session_id, position)
);

-- One row per trial, in presentation order
CREATE TABLE IF NOT EXISTS trials (
    session_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    row_index INTEGER NOT NULL,
    trial INTEGER NOT NULL,
    block INTEGER NOT NULL,
    stim INTEGER NOT NULL,
    reference INTEGER NOT NULL,
    is_same INTEGER NOT NULL,
    in_mem INTEGER NOT NULL,
    feedback INTEGER NOT NULL,
    trigger_code INTEGER NOT NULL,
    expected TEXT NOT NULL,
    PRIMARY KEY (session_id, position, row_index),
    FOREIGN KEY (session_id, position) REFERENCES blocks(session_id, position) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
);
`

// InitSchema creates the schema if needed and checks its version.
func InitSchema(ctx context.Context, db *sql.DB) error {
	currentVersion, err := getSchemaVersion(ctx, db)
	if err != nil {
		// Schema version table doesn't exist yet, create fresh schema
		if err := createSchema(ctx, db); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return nil
	}

	if currentVersion > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", currentVersion, SchemaVersion)
	}

	return nil
}

// getSchemaVersion returns the current schema version from the database.
// Returns 0 and an error if the schema_version table doesn't exist.
func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// createSchema creates the initial database schema.
func createSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`,
		SchemaVersion); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return tx.Commit()
}
