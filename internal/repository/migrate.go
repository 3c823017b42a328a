package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// Portable DDL: runs unchanged on PostgreSQL and on the SQLite database
// the repository tests use. Ids are stored as TEXT (uuid strings),
// amounts as BIGINT minor units, payloads as serialized JSON.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS uploaded_files (
		id             TEXT PRIMARY KEY,
		user_id        TEXT NOT NULL,
		filename       TEXT NOT NULL,
		mime_type      TEXT NOT NULL,
		size_bytes     BIGINT NOT NULL,
		storage_key    TEXT NOT NULL,
		status         TEXT NOT NULL,
		failure_reason TEXT,
		created_at     TIMESTAMP NOT NULL,
		updated_at     TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS parsed_summaries (
		id             TEXT PRIMARY KEY,
		file_id        TEXT NOT NULL REFERENCES uploaded_files(id),
		doc_type       TEXT NOT NULL,
		parser_version TEXT NOT NULL,
		payload        TEXT NOT NULL,
		confidence     REAL NOT NULL,
		created_at     TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_parsed_summaries_file
		ON parsed_summaries (file_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id           TEXT PRIMARY KEY,
		user_id      TEXT NOT NULL,
		account_id   TEXT NOT NULL,
		tx_date      TIMESTAMP NOT NULL,
		description  TEXT NOT NULL,
		amount_minor BIGINT NOT NULL,
		currency     TEXT NOT NULL,
		tx_type      TEXT NOT NULL,
		category     TEXT,
		cleared      BOOLEAN NOT NULL,
		created_at   TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS imported_items (
		file_id        TEXT NOT NULL REFERENCES uploaded_files(id),
		item_id        TEXT NOT NULL,
		transaction_id TEXT NOT NULL REFERENCES transactions(id),
		created_at     TIMESTAMP NOT NULL,
		PRIMARY KEY (file_id, item_id)
	)`,
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
