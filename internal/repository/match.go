// Package repository provides persistence implementations for autofill matches
// using PostgreSQL, SQLite, bbolt or process memory.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/atinyakov/GophFill/internal/models"
)

// Dialect selects the SQL placeholder syntax.
type Dialect int

const (
	// Postgres uses $1, $2, ... placeholders.
	Postgres Dialect = iota
	// SQLite uses ? placeholders.
	SQLite
)

var placeholder = regexp.MustCompile(`\$\d+`)

// SQLMatchRepository stores matches in the autofill_matches table.
type SQLMatchRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewPostgresMatchRepository creates a SQLMatchRepository for a PostgreSQL connection.
func NewPostgresMatchRepository(db *sql.DB) *SQLMatchRepository {
	return &SQLMatchRepository{DB: db, dialect: Postgres, now: time.Now}
}

// NewSQLiteMatchRepository creates a SQLMatchRepository for a SQLite connection.
func NewSQLiteMatchRepository(db *sql.DB) *SQLMatchRepository {
	return &SQLMatchRepository{DB: db, dialect: SQLite, now: time.Now}
}

func (r *SQLMatchRepository) q(query string) string {
	if r.dialect == SQLite {
		return placeholder.ReplaceAllString(query, "?")
	}
	return query
}

// AddMatch associates entryPath with originKey. Adding an existing match is a no-op.
func (r *SQLMatchRepository) AddMatch(ctx context.Context, originKey, entryPath string) error {
	_, err := r.DB.ExecContext(ctx, r.q(`
		INSERT INTO autofill_matches (origin_key, entry_path, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`), originKey, entryPath, r.now().Unix())
	if err != nil {
		return fmt.Errorf("AddMatch failed: %w", err)
	}
	return nil
}

// ClearMatches removes every match of originKey.
func (r *SQLMatchRepository) ClearMatches(ctx context.Context, originKey string) error {
	_, err := r.DB.ExecContext(ctx, r.q(`DELETE FROM autofill_matches WHERE origin_key = $1`), originKey)
	if err != nil {
		return fmt.Errorf("ClearMatches failed: %w", err)
	}
	return nil
}

// MatchesFor returns the entry paths matched to originKey in path order.
func (r *SQLMatchRepository) MatchesFor(ctx context.Context, originKey string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(`
		SELECT entry_path FROM autofill_matches WHERE origin_key = $1 ORDER BY entry_path
	`), originKey)
	if err != nil {
		return nil, fmt.Errorf("MatchesFor: %w", err)
	}
	defer rows.Close()

	paths := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Matches returns every stored match ordered by origin key and path.
func (r *SQLMatchRepository) Matches(ctx context.Context) ([]models.Match, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT origin_key, entry_path, created_at FROM autofill_matches ORDER BY origin_key, entry_path
	`)
	if err != nil {
		return nil, fmt.Errorf("Matches: %w", err)
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		var m models.Match
		var created int64
		if err := rows.Scan(&m.OriginKey, &m.EntryPath, &created); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		m.CreatedAt = time.Unix(created, 0).UTC()
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// EntryPaths returns the distinct matched entry paths.
func (r *SQLMatchRepository) EntryPaths(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT DISTINCT entry_path FROM autofill_matches ORDER BY entry_path`)
	if err != nil {
		return nil, fmt.Errorf("EntryPaths: %w", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// DeleteEntryPaths removes every match pointing at one of paths within a transaction.
func (r *SQLMatchRepository) DeleteEntryPaths(ctx context.Context, paths []string) (int64, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var removed int64
	for _, p := range paths {
		res, err := tx.ExecContext(ctx, r.q(`DELETE FROM autofill_matches WHERE entry_path = $1`), p)
		if err != nil {
			return 0, fmt.Errorf("delete: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			removed += n
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return removed, nil
}

// Close closes the database handle.
func (r *SQLMatchRepository) Close() error {
	return r.DB.Close()
}
