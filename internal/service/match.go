// Package service provides the business logic for remembering which password entries belong
// to which form origins, delegating persistence to a repository interface.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/atinyakov/GophFill/internal/models"
)

// ErrStoreWrite marks a failure to persist or clear a match. It is recoverable: the caller may
// retry the selection.
var ErrStoreWrite = errors.New("match store write failed")

// StoreWriteError describes which store operation failed for which origin.
type StoreWriteError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

// Unwrap exposes both ErrStoreWrite and the backend cause to errors.Is.
func (e *StoreWriteError) Unwrap() []error {
	return []error{ErrStoreWrite, e.Err}
}

// MatchRepository defines the persistence operations needed by the MatchService.
type MatchRepository interface {
	// AddMatch associates entryPath with originKey; adding an existing pair is a no-op.
	AddMatch(ctx context.Context, originKey, entryPath string) error
	// ClearMatches removes every entry associated with originKey.
	ClearMatches(ctx context.Context, originKey string) error
	// MatchesFor returns the entry paths associated with originKey.
	MatchesFor(ctx context.Context, originKey string) ([]string, error)
}

// MatchService implements the origin-to-entry association store on top of a repository.
// Writes for the same origin are serialized so a clear and the following add cannot
// interleave with another flow's writes.
type MatchService struct {
	repo MatchRepository

	mu    sync.Mutex
	locks map[string]*originLock
}

type originLock struct {
	mu   sync.Mutex
	refs int
}

// NewMatchService constructs a MatchService with the provided MatchRepository.
func NewMatchService(repo MatchRepository) *MatchService {
	return &MatchService{repo: repo, locks: make(map[string]*originLock)}
}

func (s *MatchService) lock(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &originLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// AddMatch records that entryPath fills forms of origin.
func (s *MatchService) AddMatch(ctx context.Context, origin models.FormOrigin, entryPath string) error {
	unlock := s.lock(origin.Key())
	defer unlock()
	return s.add(ctx, origin.Key(), entryPath)
}

// ClearMatches forgets every entry recorded for origin.
func (s *MatchService) ClearMatches(ctx context.Context, origin models.FormOrigin) error {
	unlock := s.lock(origin.Key())
	defer unlock()
	return s.clear(ctx, origin.Key())
}

// MatchesFor returns the entry paths recorded for origin.
func (s *MatchService) MatchesFor(ctx context.Context, origin models.FormOrigin) ([]string, error) {
	paths, err := s.repo.MatchesFor(ctx, origin.Key())
	if err != nil {
		return nil, fmt.Errorf("MatchesFor %s: %w", origin.Key(), err)
	}
	return paths, nil
}

// Apply performs the store side of a selection under the origin lock: an optional clear
// followed by an optional add. A failed clear aborts the add. persisted reports whether the
// association was written.
func (s *MatchService) Apply(ctx context.Context, origin models.FormOrigin, entryPath string, clear, persist bool) (persisted bool, err error) {
	if !clear && !persist {
		return false, nil
	}
	key := origin.Key()
	unlock := s.lock(key)
	defer unlock()

	if clear {
		if err := s.clear(ctx, key); err != nil {
			return false, err
		}
	}
	if persist {
		if err := s.add(ctx, key, entryPath); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (s *MatchService) add(ctx context.Context, key, entryPath string) error {
	if err := s.repo.AddMatch(ctx, key, entryPath); err != nil {
		return &StoreWriteError{Op: "add", Key: key, Err: err}
	}
	return nil
}

func (s *MatchService) clear(ctx context.Context, key string) error {
	if err := s.repo.ClearMatches(ctx, key); err != nil {
		return &StoreWriteError{Op: "clear", Key: key, Err: err}
	}
	return nil
}
