package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func setupMock(t *testing.T) (*SQLMatchRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	repo := NewPostgresMatchRepository(db)
	repo.now = func() time.Time { return time.Unix(1700000000, 0) }
	cleanup := func() {
		db.Close()
	}
	return repo, mock, cleanup
}

func TestAddMatch_Success(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO autofill_matches (origin_key, entry_path, created_at)`)).
		WithArgs("web;example.com", "example.com/alice.gpg", int64(1700000000)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.AddMatch(context.Background(), "web;example.com", "example.com/alice.gpg"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestAddMatch_Error(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO autofill_matches`)).
		WillReturnError(errors.New("disk full"))

	err := repo.AddMatch(context.Background(), "web;example.com", "example.com/alice.gpg")
	if err == nil || !regexp.MustCompile(`AddMatch failed`).MatchString(err.Error()) {
		t.Errorf("expected AddMatch failed error, got %v", err)
	}
}

func TestClearMatches(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM autofill_matches WHERE origin_key = $1`)).
		WithArgs("app;com.bank.app").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM autofill_matches WHERE origin_key = $1`)).
		WithArgs("app;com.bank.app").
		WillReturnError(errors.New("conn reset"))

	if err := repo.ClearMatches(context.Background(), "app;com.bank.app"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := repo.ClearMatches(context.Background(), "app;com.bank.app")
	if err == nil || !regexp.MustCompile(`ClearMatches failed`).MatchString(err.Error()) {
		t.Errorf("expected ClearMatches failed error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestMatchesFor(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"entry_path"}).
		AddRow("bank/user1.gpg").
		AddRow("bank/user2.gpg")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT entry_path FROM autofill_matches WHERE origin_key = $1 ORDER BY entry_path`)).
		WithArgs("web;bank.example").
		WillReturnRows(rows)

	paths, err := repo.MatchesFor(context.Background(), "web;bank.example")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 2 || paths[0] != "bank/user1.gpg" || paths[1] != "bank/user2.gpg" {
		t.Errorf("unexpected paths: %v", paths)
	}
}

func TestMatchesFor_QueryError(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT entry_path FROM autofill_matches`)).
		WillReturnError(errors.New("query fail"))

	if _, err := repo.MatchesFor(context.Background(), "web;x.com"); err == nil {
		t.Error("expected error, got nil")
	}
}

func TestMatches(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"origin_key", "entry_path", "created_at"}).
		AddRow("app;com.bank.app", "bank/user1.gpg", int64(1700000000))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT origin_key, entry_path, created_at FROM autofill_matches`)).
		WillReturnRows(rows)

	matches, err := repo.Matches(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 || matches[0].OriginKey != "app;com.bank.app" || !matches[0].CreatedAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("unexpected matches: %+v", matches)
	}
}

func TestDeleteEntryPaths(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM autofill_matches WHERE entry_path = $1`)).
		WithArgs("gone.gpg").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM autofill_matches WHERE entry_path = $1`)).
		WithArgs("old/bob.gpg").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	removed, err := repo.DeleteEntryPaths(context.Background(), []string{"gone.gpg", "old/bob.gpg"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d; want 3", removed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDeleteEntryPaths_RollbackOnError(t *testing.T) {
	repo, mock, cleanup := setupMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM autofill_matches WHERE entry_path = $1`)).
		WithArgs("gone.gpg").
		WillReturnError(errors.New("locked"))
	mock.ExpectRollback()

	if _, err := repo.DeleteEntryPaths(context.Background(), []string{"gone.gpg"}); err == nil {
		t.Fatal("expected error, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSQLiteDialectRebindsPlaceholders(t *testing.T) {
	repo := &SQLMatchRepository{dialect: SQLite}
	got := repo.q(`SELECT a FROM t WHERE x = $1 AND y = $2 AND z = $10`)
	want := `SELECT a FROM t WHERE x = ? AND y = ? AND z = ?`
	if got != want {
		t.Errorf("q() = %q; want %q", got, want)
	}
}
