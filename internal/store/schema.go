// Package store records run summaries in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the current schema version.
const SchemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS runs (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    generation        TEXT NOT NULL,
    engine            TEXT NOT NULL,
    run_number        INTEGER NOT NULL,
    ticks             INTEGER NOT NULL,
    total_ns          INTEGER NOT NULL,
    avg_step_ns       INTEGER NOT NULL,
    max_step_ns       INTEGER NOT NULL,
    min_step_ns       INTEGER NOT NULL,
    final_s           INTEGER NOT NULL,
    final_i           INTEGER NOT NULL,
    final_r           INTEGER NOT NULL,
    truncated         INTEGER NOT NULL DEFAULT 0,
    width             INTEGER NOT NULL,
    height            INTEGER NOT NULL,
    initial_infected  INTEGER NOT NULL,
    p_inf             REAL NOT NULL,
    p_rec             REAL NOT NULL,
    seed              INTEGER,
    recorded_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_engine ON runs(engine);
CREATE INDEX IF NOT EXISTS idx_runs_generation ON runs(generation);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);
`

// InitSchema creates the schema if it does not exist yet.
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

func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaV1); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, SchemaVersion); err != nil {
		return err
	}
	return tx.Commit()
}
