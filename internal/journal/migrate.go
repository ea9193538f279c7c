package journal

import (
	"database/sql"
	"fmt"
)

// schemaVersion is the latest schema version.
const schemaVersion = 1

var migrations = map[int]string{
	1: `
		CREATE TABLE IF NOT EXISTS events (
			id          TEXT PRIMARY KEY,
			type        TEXT NOT NULL,
			content     TEXT NOT NULL,
			topic       TEXT NOT NULL DEFAULT '',
			session_id  TEXT NULL,
			received_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
	`,
}

// migrate brings the schema up to schemaVersion, one transaction per step.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`); err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current); err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}

	for v := current + 1; v <= schemaVersion; v++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migrate: begin v%d: %w", v, err)
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate: apply v%d: %w", v, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?);`, v); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate: record v%d: %w", v, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate: commit v%d: %w", v, err)
		}
	}
	return nil
}
