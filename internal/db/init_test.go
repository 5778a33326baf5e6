package db_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/atinyakov/GophFill/internal/db"
)

func TestInitPostgres_ErrorPaths(t *testing.T) {
	cases := []struct {
		name       string
		dsn        string
		wantSubstr string
	}{
		{"invalid DSN", "some=random", "ping postgres"},
		{"empty DSN", "", "ping postgres"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := db.InitPostgres(tc.dsn)
			if err == nil {
				t.Fatalf("InitPostgres(%q) did not return error", tc.dsn)
			}
			if !strings.Contains(err.Error(), tc.wantSubstr) {
				t.Errorf("InitPostgres(%q) error = %q; want substring %q", tc.dsn, err.Error(), tc.wantSubstr)
			}
		})
	}
}

func TestInitSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matches.db")

	conn, err := db.InitSQLite(path)
	if err != nil {
		t.Fatalf("InitSQLite(%q) error: %v", path, err)
	}
	defer conn.Close()

	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM autofill_matches`).Scan(&n); err != nil {
		t.Fatalf("query autofill_matches: %v", err)
	}
	if n != 0 {
		t.Errorf("expected empty table, got %d rows", n)
	}

	// Reopening must not fail on the existing schema.
	conn.Close()
	again, err := db.InitSQLite(path)
	if err != nil {
		t.Fatalf("reopen InitSQLite(%q) error: %v", path, err)
	}
	again.Close()
}

func TestInitSQLite_EmptyPath(t *testing.T) {
	if _, err := db.InitSQLite(""); err == nil {
		t.Fatal("InitSQLite(\"\") did not return error")
	}
}
