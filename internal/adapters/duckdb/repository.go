package duckdb

import (
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/manthysbr/aule-weather/internal/core/ports"
)

// Repository persists conversations, messages and asset jobs in a DuckDB file.
type Repository struct {
	db *sql.DB
}

// Ensure Repository implements Repository interface
var _ ports.Repository = (*Repository)(nil)

// NewRepository opens (or creates) the database at path. An empty path
// gives an in-memory database.
func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	// duckdb allows a single writer; in-memory databases are per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}

	r := &Repository{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return r, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id VARCHAR PRIMARY KEY,
			title VARCHAR,
			created_at TIMESTAMP,
			updated_at TIMESTAMP
		)`,
		`CREATE SEQUENCE IF NOT EXISTS message_seq`,
		`CREATE TABLE IF NOT EXISTS messages (
			seq BIGINT DEFAULT nextval('message_seq'),
			id VARCHAR PRIMARY KEY,
			conversation_id VARCHAR,
			role VARCHAR,
			content VARCHAR,
			thought VARCHAR,
			steps JSON,
			tool_call JSON,
			metadata JSON,
			created_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id)`,
		`CREATE TABLE IF NOT EXISTS asset_jobs (
			id VARCHAR PRIMARY KEY,
			conversation_id VARCHAR,
			title VARCHAR,
			external_asset_id VARCHAR,
			state VARCHAR,
			created_at TIMESTAMP,
			last_polled_at TIMESTAMP,
			deadline TIMESTAMP,
			poll_attempts INTEGER,
			player_url VARCHAR,
			error_detail VARCHAR
		)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}
