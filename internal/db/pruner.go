package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// MatchPathStore is the part of a match repository the pruner needs.
type MatchPathStore interface {
	// EntryPaths returns every distinct entry path that has at least one match.
	EntryPaths(ctx context.Context) ([]string, error)
	// DeleteEntryPaths removes all matches pointing at paths and returns how many were removed.
	DeleteEntryPaths(ctx context.Context, paths []string) (int64, error)
}

// ErrStoreUnavailable is returned when the store root is missing or not a directory. No
// match is deleted in that case.
var ErrStoreUnavailable = errors.New("password store unavailable")

// PruneStaleMatches deletes matches whose entry no longer exists below storeRoot.
func PruneStaleMatches(ctx context.Context, store MatchPathStore, storeRoot string) (int64, error) {
	info, err := os.Stat(storeRoot)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%w: %s is not a directory", ErrStoreUnavailable, storeRoot)
	}

	paths, err := store.EntryPaths(ctx)
	if err != nil {
		return 0, err
	}

	var stale []string
	for _, p := range paths {
		_, err := os.Stat(filepath.Join(storeRoot, filepath.FromSlash(p)))
		if errors.Is(err, fs.ErrNotExist) {
			stale = append(stale, p)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	return store.DeleteEntryPaths(ctx, stale)
}

// StartStaleMatchPruner removes matches to deleted entries every interval until ctx is done.
func StartStaleMatchPruner(
	ctx context.Context,
	store MatchPathStore,
	storeRoot string,
	interval time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := PruneStaleMatches(ctx, store, storeRoot)
				if err != nil {
					log.Error("failed to prune stale matches", zap.Error(err))
					continue
				}
				if removed > 0 {
					log.Info("pruned stale matches", zap.Int64("removed", removed))
				}
			}
		}
	}()
}
