package search

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/atinyakov/GophFill/internal/models"
	"go.uber.org/zap"
)

// Corpus supplies the entries to search.
type Corpus interface {
	Entries(ctx context.Context) ([]models.PasswordEntry, error)
}

// Delivery is the outcome of one submitted query.
type Delivery struct {
	// Generation identifies the submission; it increases with every Submit.
	Generation uint64
	Query      models.SearchQuery
	Results    []Result
	Err        error
}

// Empty reports whether the delivery has no results.
func (d Delivery) Empty() bool { return len(d.Results) == 0 }

// Searcher runs queries asynchronously. Each Submit supersedes the previous one: the
// predecessor's context is cancelled and its result, should it still arrive, is dropped.
// Deliveries are therefore never older than anything already delivered.
type Searcher struct {
	engine  *Engine
	corpus  Corpus
	deliver func(Delivery)
	log     *zap.Logger

	generation atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup

	deliverMu sync.Mutex
}

// NewSearcher returns a Searcher calling deliver with the result of the latest query.
// deliver runs on a background goroutine and must not call Close.
func NewSearcher(engine *Engine, corpus Corpus, deliver func(Delivery), log *zap.Logger) *Searcher {
	return &Searcher{engine: engine, corpus: corpus, deliver: deliver, log: log}
}

// Submit starts a search for q and returns its generation. It does not block.
// After Close it returns 0 and does nothing.
func (s *Searcher) Submit(q models.SearchQuery) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	gen := s.generation.Add(1)

	s.wg.Add(1)
	go s.run(ctx, gen, q)
	return gen
}

// Current returns the generation of the latest submission.
func (s *Searcher) Current() uint64 { return s.generation.Load() }

// Close cancels the in-flight search, suppresses its delivery and waits for it to return.
func (s *Searcher) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		if s.cancel != nil {
			s.cancel()
		}
		s.generation.Add(1)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Searcher) run(ctx context.Context, gen uint64, q models.SearchQuery) {
	defer s.wg.Done()

	entries, err := s.corpus.Entries(ctx)
	var results []Result
	if err == nil {
		results, err = s.engine.Search(ctx, q, entries)
	}

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	if current := s.generation.Load(); gen != current {
		s.log.Debug("discarding stale search result",
			zap.Uint64("generation", gen),
			zap.Uint64("current", current))
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	if err != nil {
		s.log.Error("search failed", zap.Uint64("generation", gen), zap.Error(err))
	}
	s.deliver(Delivery{Generation: gen, Query: q, Results: results, Err: err})
}
