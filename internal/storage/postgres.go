/**
 * PostgreSQL dialect for the outcome ledger
 */

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS image_outcomes (
		id            UUID PRIMARY KEY,
		image_path    TEXT NOT NULL,
		disposition   TEXT NOT NULL,
		artifact_path TEXT,
		matches       INTEGER[] NOT NULL DEFAULT '{}',
		text_length   INTEGER NOT NULL DEFAULT 0,
		error_code    TEXT,
		error_message TEXT,
		duration_ms   BIGINT NOT NULL DEFAULT 0,
		processed_at  TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_image_outcomes_disposition ON image_outcomes (disposition);
	CREATE INDEX IF NOT EXISTS idx_image_outcomes_processed_at ON image_outcomes (processed_at DESC);
`

// openPostgres opens a pooled connection and checks it is reachable
func openPostgres(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer (the worker) plus occasional readers
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

var postgresDialect = dialect{
	name:   "postgres",
	schema: postgresSchema,
	rebind: rebindDollar,
	encodeMatches: func(matches []int) interface{} {
		ints := make([]int64, len(matches))
		for i, m := range matches {
			ints[i] = int64(m)
		}
		return pq.Array(ints)
	},
	matchesScanner: func() (interface{}, func() ([]int, error)) {
		var ints []int64
		return pq.Array(&ints), func() ([]int, error) {
			out := make([]int, len(ints))
			for i, v := range ints {
				out[i] = int(v)
			}
			return out, nil
		}
	},
	sanitize: stripNUL,
}

// rebindDollar rewrites ? placeholders to $1, $2, ...
func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// stripNUL removes NUL bytes, which PostgreSQL rejects in TEXT columns
func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}
