package store

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	sqlStore
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{sqlStore{db: db, q: postgresQueries}}
}

// Migrate creates the schema if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.migrate(ctx)
}

var postgresQueries = sqlQueries{
	schema: []string{
		`CREATE TABLE IF NOT EXISTS reputations (
			account TEXT PRIMARY KEY,
			record BYTEA NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS stakes (
			account TEXT PRIMARY KEY,
			record BYTEA NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tier_changes (
			seq BIGSERIAL PRIMARY KEY,
			account TEXT NOT NULL,
			change JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS tier_changes_account ON tier_changes (account, seq)`,
	},
	getReputation: `SELECT record FROM reputations WHERE account = $1`,
	getStake:      `SELECT record FROM stakes WHERE account = $1`,
	putReputation: `INSERT INTO reputations (account, record) VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET record = EXCLUDED.record`,
	putStake: `INSERT INTO stakes (account, record) VALUES ($1, $2)
		ON CONFLICT (account) DO UPDATE SET record = EXCLUDED.record`,
	insertChange:    `INSERT INTO tier_changes (account, change) VALUES ($1, $2)`,
	listTierChanges: `SELECT change FROM tier_changes WHERE account = $1 ORDER BY seq`,
}
