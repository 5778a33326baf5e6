package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/atinyakov/GophFill/internal/db"
	"github.com/atinyakov/GophFill/internal/models"
)

// Backend names a match storage implementation.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
	BackendBolt     Backend = "bolt"
	BackendMemory   Backend = "memory"
)

// Backends lists every supported backend.
var Backends = []Backend{BackendSQLite, BackendBolt, BackendPostgres, BackendMemory}

// MatchRepository is implemented by every backend.
type MatchRepository interface {
	AddMatch(ctx context.Context, originKey, entryPath string) error
	ClearMatches(ctx context.Context, originKey string) error
	MatchesFor(ctx context.Context, originKey string) ([]string, error)
	Matches(ctx context.Context) ([]models.Match, error)
	EntryPaths(ctx context.Context) ([]string, error)
	DeleteEntryPaths(ctx context.Context, paths []string) (int64, error)
	Close() error
}

// ParseBackend maps a configuration value to a Backend.
func ParseBackend(name string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Backends {
		if b == known {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown match backend %q", name)
}

// Open returns the repository for backend. dsn is the PostgreSQL DSN or the database file
// path for sqlite and bolt; it is ignored for memory.
func Open(backend Backend, dsn string) (MatchRepository, error) {
	if backend == BackendSQLite || backend == BackendBolt {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o700); err != nil {
			return nil, fmt.Errorf("create match database directory: %w", err)
		}
	}
	switch backend {
	case BackendPostgres:
		conn, err := db.InitPostgres(dsn)
		if err != nil {
			return nil, err
		}
		return NewPostgresMatchRepository(conn), nil
	case BackendSQLite:
		conn, err := db.InitSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return NewSQLiteMatchRepository(conn), nil
	case BackendBolt:
		return NewBoltMatchRepository(dsn)
	case BackendMemory:
		return NewMemoryMatchRepository(), nil
	default:
		return nil, fmt.Errorf("unknown match backend %q", backend)
	}
}
