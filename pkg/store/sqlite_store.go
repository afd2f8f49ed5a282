package store

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	sqlStore
}

// NewSQLiteStore wraps db and creates the schema if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	// SQLite serializes writers; one connection avoids SQLITE_BUSY on Commit.
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{sqlStore{db: db, q: sqliteQueries}}
	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

var sqliteQueries = sqlQueries{
	schema: []string{
		`CREATE TABLE IF NOT EXISTS reputations (
			account TEXT PRIMARY KEY,
			record BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS stakes (
			account TEXT PRIMARY KEY,
			record BLOB NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tier_changes (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			account TEXT NOT NULL,
			change JSON NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS tier_changes_account ON tier_changes (account, seq);`,
	},
	getReputation: `SELECT record FROM reputations WHERE account = ?`,
	getStake:      `SELECT record FROM stakes WHERE account = ?`,
	putReputation: `INSERT INTO reputations (account, record) VALUES (?, ?)
		ON CONFLICT(account) DO UPDATE SET record = excluded.record`,
	putStake: `INSERT INTO stakes (account, record) VALUES (?, ?)
		ON CONFLICT(account) DO UPDATE SET record = excluded.record`,
	insertChange:    `INSERT INTO tier_changes (account, change) VALUES (?, ?)`,
	listTierChanges: `SELECT change FROM tier_changes WHERE account = ? ORDER BY seq`,
}
