package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS image_outcomes (
		id            TEXT PRIMARY KEY,
		image_path    TEXT NOT NULL,
		disposition   TEXT NOT NULL,
		artifact_path TEXT,
		matches       TEXT NOT NULL DEFAULT '[]',
		text_length   INTEGER NOT NULL DEFAULT 0,
		error_code    TEXT,
		error_message TEXT,
		duration_ms   INTEGER NOT NULL DEFAULT 0,
		processed_at  TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_image_outcomes_disposition ON image_outcomes (disposition);
	CREATE INDEX IF NOT EXISTS idx_image_outcomes_processed_at ON image_outcomes (processed_at);
`

// openSQLite opens a local ledger file. SQLite allows a single writer, so
// the pool is pinned to one connection.
func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure sqlite ledger: %w", err)
	}

	return db, nil
}

var sqliteDialect = dialect{
	name:   "sqlite",
	schema: sqliteSchema,
	rebind: func(q string) string { return q },
	encodeMatches: func(matches []int) interface{} {
		if matches == nil {
			matches = []int{}
		}
		raw, _ := json.Marshal(matches)
		return string(raw)
	},
	matchesScanner: func() (interface{}, func() ([]int, error)) {
		var raw string
		return &raw, func() ([]int, error) {
			var out []int
			if err := json.Unmarshal([]byte(raw), &out); err != nil {
				return nil, fmt.Errorf("failed to decode matches: %w", err)
			}
			return out, nil
		}
	},
	sanitize: func(s string) string { return s },
}
