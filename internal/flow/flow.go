// Package flow drives one autofill request from origin to decryption: it keeps the query,
// re-runs the search whenever the query changes, accepts the user's selection, updates the
// remembered matches and hands the chosen entry to the decrypter.
package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atinyakov/GophFill/internal/models"
	"github.com/atinyakov/GophFill/internal/search"
	"go.uber.org/zap"
)

var (
	// ErrMissingRequestState is returned when a request lacks client state or a single origin.
	ErrMissingRequestState = errors.New("missing autofill request state")
	// ErrUnknownEntry is returned when the selected path was not among the delivered results.
	ErrUnknownEntry = errors.New("entry not offered by the current results")
	// ErrInvalidState is returned when an operation does not apply to the flow's state.
	ErrInvalidState = errors.New("operation not allowed in current flow state")
	// ErrEntryGone is returned when the selected entry disappeared from the store.
	ErrEntryGone = errors.New("entry no longer exists")
)

// entryLookup is implemented by corpora that can confirm a single entry still exists.
type entryLookup interface {
	Lookup(relPath string) (models.PasswordEntry, bool)
}

// State is the lifecycle position of a Flow.
type State int

const (
	AwaitingQuery State = iota
	ShowingResults
	SelectionMade
	Completed
	Cancelled
)

func (s State) String() string {
	switch s {
	case AwaitingQuery:
		return "awaiting_query"
	case ShowingResults:
		return "showing_results"
	case SelectionMade:
		return "selection_made"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Completed || s == Cancelled }

// Request is the input of an autofill request. ClientState is opaque and returned unchanged.
type Request struct {
	ClientState []byte
	WebOrigin   string
	AppOrigin   string
}

// DecryptRequest asks the decryption subsystem to open an entry.
type DecryptRequest struct {
	EntryPath   string
	AbsPath     string
	ClientState []byte
}

// Decrypter receives the entry chosen by the user.
type Decrypter interface {
	RequestDecrypt(ctx context.Context, req DecryptRequest) error
}

// DecrypterFunc adapts a function to Decrypter.
type DecrypterFunc func(ctx context.Context, req DecryptRequest) error

func (f DecrypterFunc) RequestDecrypt(ctx context.Context, req DecryptRequest) error {
	return f(ctx, req)
}

// MatchStore applies the store side of a selection; *service.MatchService satisfies it.
type MatchStore interface {
	Apply(ctx context.Context, origin models.FormOrigin, entryPath string, clear, persist bool) (bool, error)
}

// Deps are the collaborators of a Flow.
type Deps struct {
	Engine    *search.Engine
	Corpus    search.Corpus
	Matches   MatchStore
	Decrypter Decrypter
	Labeler   models.AppLabeler
	// StrictByDefault starts web requests in strict-domain mode.
	StrictByDefault bool
	Log             *zap.Logger
	Now             func() time.Time
}

// SelectOptions are the user's choices made together with a selection.
type SelectOptions struct {
	// Clear forgets the entries previously remembered for the origin.
	Clear bool
	// Persist remembers the selected entry for the origin.
	Persist bool
}

// Completion is the outcome of a successful selection.
type Completion struct {
	EntryPath      string
	ClientState    []byte
	MatchPersisted bool
}

// Flow is the state machine of one autofill request.
type Flow struct {
	origin      models.FormOrigin
	clientState []byte
	deps        Deps
	searcher    *search.Searcher

	mu          sync.Mutex
	state       State
	query       models.SearchQuery
	latest      search.Delivery
	hasLatest   bool
	lastActive  time.Time
	subscribers map[chan search.Delivery]struct{}
}

// New validates req and returns a Flow in AwaitingQuery. It fails with
// ErrMissingRequestState when client state is empty or the request does not name exactly
// one valid origin; no search is started in that case.
func New(req Request, deps Deps) (*Flow, error) {
	if len(req.ClientState) == 0 {
		return nil, fmt.Errorf("%w: client state is empty", ErrMissingRequestState)
	}
	origin, err := models.OriginFromExtras(req.WebOrigin, req.AppOrigin)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMissingRequestState, err)
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	f := &Flow{
		origin:      origin,
		clientState: append([]byte(nil), req.ClientState...),
		deps:        deps,
		state:       AwaitingQuery,
		lastActive:  deps.Now(),
		subscribers: make(map[chan search.Delivery]struct{}),
	}
	f.searcher = search.NewSearcher(deps.Engine, deps.Corpus, f.onDelivery, deps.Log.With(zap.String("origin", origin.Key())))
	return f, nil
}

// Origin returns the request origin.
func (f *Flow) Origin() models.FormOrigin { return f.origin }

// StrictAvailable reports whether strict-domain filtering can be toggled.
func (f *Flow) StrictAvailable() bool {
	_, ok := f.origin.(models.WebOrigin)
	return ok
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Query returns the current query.
func (f *Flow) Query() models.SearchQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.query
}

// LastActive returns the time of the last client interaction.
func (f *Flow) LastActive() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastActive
}

// Start seeds the query with the origin's trusted display identifier and submits it.
func (f *Flow) Start() (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != AwaitingQuery || f.searcher.Current() != 0 {
		return 0, fmt.Errorf("start: %w", ErrInvalidState)
	}
	filter := models.Fuzzy
	if f.deps.StrictByDefault && f.StrictAvailable() {
		filter = models.StrictDomain
	}
	f.query = models.SearchQuery{
		Text:   f.origin.PrettyIdentifier(f.deps.Labeler, false),
		Filter: filter,
		Search: models.Recursive,
		List:   models.FilesOnly,
	}
	f.lastActive = f.deps.Now()
	return f.searcher.Submit(f.query), nil
}

// SetQuery replaces the query text and resubmits.
func (f *Flow) SetQuery(text string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.editable("set query"); err != nil {
		return 0, err
	}
	f.query.Text = strings.TrimSpace(text)
	return f.searcher.Submit(f.query), nil
}

// SetStrict toggles strict-domain filtering and resubmits. It is ignored for app origins.
func (f *Flow) SetStrict(strict bool) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.editable("set strict"); err != nil {
		return 0, err
	}
	if !f.StrictAvailable() {
		return f.searcher.Current(), nil
	}
	filter := models.Fuzzy
	if strict {
		filter = models.StrictDomain
	}
	if filter == f.query.Filter {
		return f.searcher.Current(), nil
	}
	f.query.Filter = filter
	return f.searcher.Submit(f.query), nil
}

// editable must be called with f.mu held.
func (f *Flow) editable(op string) error {
	f.lastActive = f.deps.Now()
	if f.state != AwaitingQuery && f.state != ShowingResults {
		return fmt.Errorf("%s in %s: %w", op, f.state, ErrInvalidState)
	}
	if f.searcher.Current() == 0 {
		return fmt.Errorf("%s before start: %w", op, ErrInvalidState)
	}
	return nil
}

// Latest returns the most recent delivery, if any.
func (f *Flow) Latest() (search.Delivery, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.hasLatest
}

// Subscribe returns a channel receiving deliveries. The channel holds at most the newest
// undelivered result and is closed when the flow ends or the returned func is called.
func (f *Flow) Subscribe() (<-chan search.Delivery, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan search.Delivery, 1)
	if f.state.Terminal() {
		close(ch)
		return ch, func() {}
	}
	f.subscribers[ch] = struct{}{}
	if f.hasLatest {
		ch <- f.latest
	}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if _, ok := f.subscribers[ch]; ok {
				delete(f.subscribers, ch)
				close(ch)
			}
		})
	}
}

func (f *Flow) onDelivery(d search.Delivery) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Terminal() {
		return
	}
	f.latest = d
	f.hasLatest = true
	if f.state == AwaitingQuery {
		f.state = ShowingResults
	}
	for ch := range f.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- d
	}
}

// Select completes the flow with relPath, which must be one of the latest delivered results.
// On a store failure the flow returns to ShowingResults and the selection may be retried.
func (f *Flow) Select(ctx context.Context, relPath string, opts SelectOptions) (Completion, error) {
	f.mu.Lock()
	f.lastActive = f.deps.Now()
	if f.state != ShowingResults {
		state := f.state
		f.mu.Unlock()
		return Completion{}, fmt.Errorf("select in %s: %w", state, ErrInvalidState)
	}
	var chosen *search.Result
	for i := range f.latest.Results {
		if f.latest.Results[i].Entry.RelPath == relPath {
			chosen = &f.latest.Results[i]
			break
		}
	}
	if chosen == nil {
		f.mu.Unlock()
		return Completion{}, fmt.Errorf("select %q: %w", relPath, ErrUnknownEntry)
	}
	entry := chosen.Entry
	f.state = SelectionMade
	f.mu.Unlock()

	// Results may predate a deletion; never remember an entry that is gone.
	if l, ok := f.deps.Corpus.(entryLookup); ok {
		if _, found := l.Lookup(entry.RelPath); !found {
			f.reopen()
			return Completion{}, fmt.Errorf("select %q: %w", entry.RelPath, ErrEntryGone)
		}
	}

	persisted, err := f.deps.Matches.Apply(ctx, f.origin, entry.RelPath, opts.Clear, opts.Persist)
	if err != nil {
		f.deps.Log.Warn("failed to update matches", zap.String("entry", entry.RelPath), zap.Error(err))
		f.reopen()
		return Completion{}, err
	}

	err = f.deps.Decrypter.RequestDecrypt(ctx, DecryptRequest{
		EntryPath:   entry.RelPath,
		AbsPath:     entry.AbsPath,
		ClientState: f.clientState,
	})
	if err != nil {
		f.reopen()
		return Completion{}, fmt.Errorf("request decrypt: %w", err)
	}

	if !f.finish(Completed) {
		return Completion{}, fmt.Errorf("select: %w", ErrInvalidState)
	}
	f.deps.Log.Info("autofill entry selected",
		zap.String("origin", f.origin.Key()),
		zap.String("entry", entry.RelPath),
		zap.Bool("persisted", persisted))
	return Completion{EntryPath: entry.RelPath, ClientState: f.clientState, MatchPersisted: persisted}, nil
}

func (f *Flow) reopen() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == SelectionMade {
		f.state = ShowingResults
	}
}

// Cancel ends the flow without a selection. Nothing is persisted. Cancelling a finished flow
// is a no-op.
func (f *Flow) Cancel() {
	f.finish(Cancelled)
}

// finish moves the flow into a terminal state, stops the searcher and closes subscriptions.
// It reports false when the flow had already ended.
func (f *Flow) finish(to State) bool {
	f.mu.Lock()
	if f.state.Terminal() {
		f.mu.Unlock()
		return false
	}
	f.state = to
	for ch := range f.subscribers {
		delete(f.subscribers, ch)
		close(ch)
	}
	f.mu.Unlock()

	// The delivery callback takes f.mu, so the searcher is closed without it.
	f.searcher.Close()
	return true
}
