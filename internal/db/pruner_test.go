package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// fakePathStore records deletions and returns preconfigured paths.
type fakePathStore struct {
	mu       sync.Mutex
	paths    []string
	pathsErr error
	deleted  []string
}

func (f *fakePathStore) EntryPaths(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...), f.pathsErr
}

func (f *fakePathStore) DeleteEntryPaths(_ context.Context, paths []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, paths...)
	return int64(len(paths)), nil
}

func (f *fakePathStore) deletedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

func storeWith(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		p := filepath.Join(root, filepath.FromSlash(f))
		if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestPruneStaleMatches(t *testing.T) {
	root := storeWith(t, "bank/user1.gpg")
	store := &fakePathStore{paths: []string{"bank/user1.gpg", "bank/user2.gpg", "gone.gpg"}}

	removed, err := PruneStaleMatches(context.Background(), store, root)
	if err != nil {
		t.Fatalf("PruneStaleMatches error: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d; want 2", removed)
	}
	if want := []string{"bank/user2.gpg", "gone.gpg"}; !reflect.DeepEqual(store.deletedPaths(), want) {
		t.Errorf("deleted = %v; want %v", store.deletedPaths(), want)
	}
}

func TestPruneStaleMatches_NothingStale(t *testing.T) {
	root := storeWith(t, "bank/user1.gpg")
	store := &fakePathStore{paths: []string{"bank/user1.gpg"}}

	removed, err := PruneStaleMatches(context.Background(), store, root)
	if err != nil || removed != 0 {
		t.Fatalf("PruneStaleMatches = %d, %v; want 0, nil", removed, err)
	}
	if len(store.deletedPaths()) != 0 {
		t.Errorf("unexpected deletions: %v", store.deletedPaths())
	}
}

func TestPruneStaleMatches_StoreRootUnavailable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "store.gpg")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	roots := map[string]string{
		"missing":       filepath.Join(t.TempDir(), "unmounted"),
		"not directory": file,
	}
	for name, root := range roots {
		t.Run(name, func(t *testing.T) {
			store := &fakePathStore{paths: []string{"bank/user1.gpg", "mail/me.gpg"}}

			removed, err := PruneStaleMatches(context.Background(), store, root)
			if !errors.Is(err, ErrStoreUnavailable) {
				t.Fatalf("err = %v; want ErrStoreUnavailable", err)
			}
			if removed != 0 || len(store.deletedPaths()) != 0 {
				t.Errorf("removed = %d, deleted = %v; want nothing removed", removed, store.deletedPaths())
			}
		})
	}
}

func TestStartStaleMatchPruner_Success(t *testing.T) {
	root := storeWith(t)
	store := &fakePathStore{paths: []string{"gone.gpg"}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartStaleMatchPruner(ctx, store, root, 10*time.Millisecond, zap.NewNop())

	time.Sleep(200 * time.Millisecond)
	cancel()

	if len(store.deletedPaths()) == 0 {
		t.Error("expected stale match to be pruned")
	}
}

func TestStartStaleMatchPruner_ErrorLogged(t *testing.T) {
	store := &fakePathStore{pathsErr: fmt.Errorf("db fail")}

	var buf syncBuffer
	encCfg := zap.NewDevelopmentEncoderConfig()
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(&buf),
		zapcore.ErrorLevel,
	)
	logger := zap.New(core)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartStaleMatchPruner(ctx, store, t.TempDir(), 10*time.Millisecond, logger)

	time.Sleep(200 * time.Millisecond)
	cancel()

	out := buf.String()
	if !strings.Contains(out, "failed to prune stale matches") {
		t.Errorf("expected error log, got:\n%s", out)
	}
}

func TestStartStaleMatchPruner_CancelBeforeTicker(t *testing.T) {
	store := &fakePathStore{paths: []string{"gone.gpg"}}

	ctx, cancel := context.WithCancel(context.Background())
	StartStaleMatchPruner(ctx, store, t.TempDir(), 100*time.Millisecond, zap.NewNop())
	cancel()

	time.Sleep(150 * time.Millisecond)

	if len(store.deletedPaths()) != 0 {
		t.Errorf("unexpected deletions: %v", store.deletedPaths())
	}
}

// syncBuffer is a bytes.Buffer safe for the pruner goroutine and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
