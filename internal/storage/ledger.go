/**
 * Outcome Ledger for the screenscan worker
 *
 * Persists one row per routed image so runs can be audited after the
 * sources have been deleted. Backed by PostgreSQL (postgres:// DSN) or a
 * local SQLite file (sqlite:// DSN).
 */

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/adverant/nexus/screenscan-worker/internal/errors"
	"github.com/adverant/nexus/screenscan-worker/internal/processor"
)

// dialect isolates the per-driver differences of the ledger SQL
type dialect struct {
	name   string
	schema string
	rebind func(query string) string

	encodeMatches  func(matches []int) interface{}
	matchesScanner func() (dest interface{}, decode func() ([]int, error))
	sanitize       func(s string) string
}

// Record is one persisted outcome
type Record struct {
	ID           string
	ImagePath    string
	Disposition  string
	ArtifactPath string
	Matches      []int
	TextLength   int
	ErrorCode    string
	ErrorMessage string
	DurationMs   int64
	ProcessedAt  time.Time
}

// Ledger stores outcomes; it implements processor.Observer
type Ledger struct {
	db      *sql.DB
	dialect dialect
}

// OpenLedger connects to dsn and ensures the schema exists
func OpenLedger(ctx context.Context, dsn string) (*Ledger, error) {
	db, d, err := open(dsn)
	if err != nil {
		return nil, err
	}

	l := &Ledger{db: db, dialect: d}
	if err := l.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return l, nil
}

func open(dsn string) (*sql.DB, dialect, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		db, err := openPostgres(dsn)
		return db, postgresDialect, err
	case strings.HasPrefix(dsn, "sqlite://"):
		path := strings.TrimPrefix(dsn, "sqlite://")
		if path == "" {
			return nil, dialect{}, apperrors.NewConfigError("sqlite ledger DSN has no path")
		}
		db, err := openSQLite(path)
		return db, sqliteDialect, err
	case dsn == "":
		return nil, dialect{}, apperrors.NewConfigError("ledger DSN is required")
	default:
		return nil, dialect{}, apperrors.NewConfigError("unsupported ledger DSN scheme: %q", schemeOf(dsn))
	}
}

func schemeOf(dsn string) string {
	if i := strings.Index(dsn, "://"); i >= 0 {
		return dsn[:i]
	}
	return dsn
}

func (l *Ledger) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(l.dialect.schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate %s ledger: %w", l.dialect.name, err)
		}
	}
	return nil
}

// Observe inserts outcome as a new row
func (l *Ledger) Observe(ctx context.Context, outcome processor.Outcome) error {
	clean := l.dialect.sanitize

	query := l.dialect.rebind(`
		INSERT INTO image_outcomes (
			id, image_path, disposition, artifact_path, matches, text_length,
			error_code, error_message, duration_ms, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := l.db.ExecContext(ctx, query,
		uuid.NewString(),
		clean(outcome.ImagePath),
		string(outcome.Disposition),
		nullString(clean(outcome.ArtifactPath)),
		l.dialect.encodeMatches(outcome.Matches),
		outcome.TextLength,
		nullString(outcome.ErrorCode()),
		nullString(clean(outcome.ErrorMessage())),
		outcome.Duration.Milliseconds(),
		outcome.ProcessedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome for %s: %w", outcome.ImagePath, err)
	}

	return nil
}

// Counts returns the number of recorded outcomes per disposition
func (l *Ledger) Counts(ctx context.Context) (map[string]int64, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT disposition, COUNT(*) FROM image_outcomes GROUP BY disposition`)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var disposition string
		var n int64
		if err := rows.Scan(&disposition, &n); err != nil {
			return nil, fmt.Errorf("failed to scan outcome count: %w", err)
		}
		counts[disposition] = n
	}

	return counts, rows.Err()
}

// Recent returns up to limit outcomes, newest first
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}

	query := l.dialect.rebind(`
		SELECT id, image_path, disposition, artifact_path, matches, text_length,
			error_code, error_message, duration_ms, processed_at
		FROM image_outcomes
		ORDER BY processed_at DESC
		LIMIT ?`)

	rows, err := l.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r                       Record
			artifact, code, message sql.NullString
		)
		matchesDest, decodeMatches := l.dialect.matchesScanner()

		if err := rows.Scan(&r.ID, &r.ImagePath, &r.Disposition, &artifact, matchesDest,
			&r.TextLength, &code, &message, &r.DurationMs, &r.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}

		r.Matches, err = decodeMatches()
		if err != nil {
			return nil, err
		}
		r.ArtifactPath = artifact.String
		r.ErrorCode = code.String
		r.ErrorMessage = message.String
		records = append(records, r)
	}

	return records, rows.Err()
}

// Close closes the database connection
func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
