package sql

import (
	"context"
	"database/sql"
	"fmt"
)

const SessionsSchema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id VARCHAR NOT NULL PRIMARY KEY,
		property_id VARCHAR NOT NULL,
		period_id VARCHAR NOT NULL,
		status VARCHAR NOT NULL,
		health_score DOUBLE NOT NULL DEFAULT 0,
		options TEXT NOT NULL DEFAULT '{}',
		override_actor VARCHAR NULL,
		override_justification TEXT NULL,
		error TEXT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		started_at TIMESTAMP NULL,
		run_finished_at TIMESTAMP NULL,
		completed_at TIMESTAMP NULL
	);
`

const SessionsKeyIndex = `
	CREATE INDEX IF NOT EXISTS idx_sessions_key ON sessions (property_id, period_id, status);
`

const MatchesSchema = `
	CREATE TABLE IF NOT EXISTS matches (
		id VARCHAR NOT NULL PRIMARY KEY,
		session_id VARCHAR NOT NULL REFERENCES sessions (id),
		rule_code VARCHAR NOT NULL,
		source_document VARCHAR NOT NULL,
		target_document VARCHAR NOT NULL,
		source_value TEXT NOT NULL,
		target_value TEXT NOT NULL,
		difference TEXT NOT NULL,
		is_material BOOLEAN NOT NULL,
		confidence_score DOUBLE NOT NULL,
		match_type VARCHAR NOT NULL,
		status VARCHAR NOT NULL,
		tier VARCHAR NOT NULL,
		requires_review BOOLEAN NOT NULL,
		explanation TEXT NOT NULL,
		evaluation_error TEXT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE (session_id, rule_code)
	);
`

const DiscrepanciesSchema = `
	CREATE TABLE IF NOT EXISTS discrepancies (
		id VARCHAR NOT NULL PRIMARY KEY,
		match_id VARCHAR NOT NULL UNIQUE REFERENCES matches (id),
		session_id VARCHAR NOT NULL,
		severity VARCHAR NOT NULL,
		resolution_status VARCHAR NOT NULL,
		resolution_action VARCHAR NOT NULL DEFAULT '',
		manual_value TEXT NULL,
		notes TEXT NOT NULL DEFAULT '',
		resolved_by VARCHAR NULL,
		resolved_at TIMESTAMP NULL,
		created_at TIMESTAMP NOT NULL
	);
`

const AuditSchema = `
	CREATE TABLE IF NOT EXISTS audit_entries (
		id VARCHAR NOT NULL PRIMARY KEY,
		session_id VARCHAR NOT NULL,
		entity_type VARCHAR NOT NULL,
		entity_id VARCHAR NOT NULL,
		action VARCHAR NOT NULL,
		actor VARCHAR NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);
`

var bootQueries = []string{
	SessionsSchema,
	SessionsKeyIndex,
	MatchesSchema,
	DiscrepanciesSchema,
	AuditSchema,
}

type Settings struct {
	Driver string
	DSN    string
}

// NewDB opens the database and creates the reconciliation tables.
func NewDB(ctx context.Context, settings Settings) (*sql.DB, error) {
	db, err := sql.Open(settings.Driver, settings.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", settings.Driver, err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func Migrate(ctx context.Context, db *sql.DB) error {
	for _, query := range bootQueries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}
