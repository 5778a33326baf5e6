package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/atinyakov/GophFill/internal/models"
)

// MemoryMatchRepository keeps matches in process memory. It does not survive restarts and
// is meant for tests and throwaway sessions.
type MemoryMatchRepository struct {
	mu      sync.RWMutex
	matches map[string]map[string]time.Time
	now     func() time.Time
}

// NewMemoryMatchRepository returns an empty MemoryMatchRepository.
func NewMemoryMatchRepository() *MemoryMatchRepository {
	return &MemoryMatchRepository{matches: make(map[string]map[string]time.Time), now: time.Now}
}

func (r *MemoryMatchRepository) AddMatch(_ context.Context, originKey, entryPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.matches[originKey]
	if !ok {
		set = make(map[string]time.Time)
		r.matches[originKey] = set
	}
	if _, exists := set[entryPath]; !exists {
		set[entryPath] = r.now().UTC()
	}
	return nil
}

func (r *MemoryMatchRepository) ClearMatches(_ context.Context, originKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.matches, originKey)
	return nil
}

func (r *MemoryMatchRepository) MatchesFor(_ context.Context, originKey string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paths := make([]string, 0, len(r.matches[originKey]))
	for p := range r.matches[originKey] {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (r *MemoryMatchRepository) Matches(_ context.Context) ([]models.Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matches []models.Match
	for key, set := range r.matches {
		for p, created := range set {
			matches = append(matches, models.Match{OriginKey: key, EntryPath: p, CreatedAt: created})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].OriginKey != matches[j].OriginKey {
			return matches[i].OriginKey < matches[j].OriginKey
		}
		return matches[i].EntryPath < matches[j].EntryPath
	})
	return matches, nil
}

func (r *MemoryMatchRepository) EntryPaths(ctx context.Context) ([]string, error) {
	matches, _ := r.Matches(ctx)
	return distinctPaths(matches), nil
}

func (r *MemoryMatchRepository) DeleteEntryPaths(_ context.Context, paths []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for key, set := range r.matches {
		for _, p := range paths {
			if _, ok := set[p]; ok {
				delete(set, p)
				removed++
			}
		}
		if len(set) == 0 {
			delete(r.matches, key)
		}
	}
	return removed, nil
}

func (r *MemoryMatchRepository) Close() error { return nil }

func distinctPaths(matches []models.Match) []string {
	seen := make(map[string]bool)
	var paths []string
	for _, m := range matches {
		if !seen[m.EntryPath] {
			seen[m.EntryPath] = true
			paths = append(paths, m.EntryPath)
		}
	}
	sort.Strings(paths)
	return paths
}
