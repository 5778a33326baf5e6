// Package search filters password-store entries for an autofill request.
//
// Engine is a pure function of (query, corpus): it filters by search and list mode,
// resolves every candidate's label, orders candidates deterministically and keeps those
// accepted by the fuzzy or strict-domain matcher. Searcher runs Engine off the caller's
// goroutine and delivers only the most recently submitted query's results.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/atinyakov/GophFill/internal/directory"
	"github.com/atinyakov/GophFill/internal/models"
	"go.uber.org/zap"
)

const (
	// DefaultLimit caps the number of results when no limit is configured.
	DefaultLimit = 100
	// MaxLimit is the highest accepted limit.
	MaxLimit = 1000

	cancelCheckEvery = 64
)

// Result is one candidate entry with its resolved display label.
type Result struct {
	Entry models.PasswordEntry
	Label directory.Label
}

// Engine filters and orders entries.
type Engine struct {
	structure directory.Structure
	limit     int
	log       *zap.Logger
}

// NewEngine returns an Engine resolving labels with structure. limit outside
// 1..MaxLimit falls back to DefaultLimit.
func NewEngine(structure directory.Structure, limit int, log *zap.Logger) *Engine {
	if limit <= 0 || limit > MaxLimit {
		limit = DefaultLimit
	}
	return &Engine{structure: structure, limit: limit, log: log}
}

// Structure returns the directory convention labels are resolved with.
func (e *Engine) Structure() directory.Structure { return e.structure }

// Search returns the entries of corpus matching q, ordered by label sort key then path.
// A corpus entry whose path cannot be resolved aborts the search with
// directory.ErrMalformedEntry.
func (e *Engine) Search(ctx context.Context, q models.SearchQuery, corpus []models.PasswordEntry) ([]Result, error) {
	candidates := make([]Result, 0, len(corpus))
	for _, entry := range corpus {
		if q.Search == models.TopLevelOnly && !entry.TopLevel() {
			continue
		}
		if q.List == models.FilesOnly && entry.IsDir {
			continue
		}
		label, err := e.structure.Resolve(entry.RelPath)
		if err != nil {
			e.log.Error("cannot resolve password store entry",
				zap.String("path", entry.RelPath),
				zap.Stringer("structure", e.structure),
				zap.Error(err))
			return nil, fmt.Errorf("resolve %q: %w", entry.RelPath, err)
		}
		candidates = append(candidates, Result{Entry: entry, Label: label})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return less(candidates[i], candidates[j])
	})

	match := newMatcher(q)
	// Under fuzzy filtering, strict-domain hits for the same text are kept ahead of the
	// cap so a capped fuzzy result still contains every capped strict result.
	var preferred matcher
	if _, ok := strictDomain(q.Text); ok && q.Filter == models.Fuzzy {
		preferred = strictMatcher(q.Text)
	}

	var strict, rest []int
	for i, c := range candidates {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		switch {
		case preferred != nil && preferred(c.Label):
			strict = append(strict, i)
		case len(rest) < e.limit && match(c.Label):
			rest = append(rest, i)
		default:
			continue
		}
		if len(strict) == e.limit || (preferred == nil && len(rest) == e.limit) {
			break
		}
	}
	rest = rest[:min(len(rest), e.limit-len(strict))]

	// Both index lists are ascending; merging keeps the sorted order.
	results := make([]Result, 0, len(strict)+len(rest))
	for len(strict) > 0 || len(rest) > 0 {
		if len(rest) == 0 || (len(strict) > 0 && strict[0] < rest[0]) {
			results = append(results, candidates[strict[0]])
			strict = strict[1:]
			continue
		}
		results = append(results, candidates[rest[0]])
		rest = rest[1:]
	}
	return results, nil
}

func less(a, b Result) bool {
	ka, kb := a.Label.SortKey(), b.Label.SortKey()
	if la, lb := strings.ToLower(ka), strings.ToLower(kb); la != lb {
		return la < lb
	}
	if ka != kb {
		return ka < kb
	}
	return a.Entry.RelPath < b.Entry.RelPath
}
