// Package database owns the SQLite connection and schema for the gallery's
// relational state: users, subscriptions, and the video catalog.
package database

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	email         TEXT NOT NULL UNIQUE COLLATE NOCASE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS subscriptions (
	user_id    INTEGER PRIMARY KEY REFERENCES users(id),
	status     TEXT NOT NULL DEFAULT 'none',
	period_end TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS videos (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	label      TEXT NOT NULL,
	youtube_id TEXT NOT NULL UNIQUE,
	thumbnail  TEXT NOT NULL DEFAULT '',
	category   TEXT NOT NULL DEFAULT ''
);
`

// Open opens (creating if necessary) the SQLite database at path and ensures
// the schema exists. Pass ":memory:" for an ephemeral database in tests.
func Open(path string) (*sql.DB, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return db, nil
}
