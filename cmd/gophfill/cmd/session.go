package cmd

import (
	"context"
	"time"

	"github.com/atinyakov/GophFill/internal/client"
	"github.com/atinyakov/GophFill/internal/flow"
	"github.com/atinyakov/GophFill/internal/models"
	"github.com/atinyakov/GophFill/internal/search"
)

// row is one rendered result.
type row struct {
	Path       string
	Breadcrumb string
	Identifier string
	Account    string
	Subtitle   string
	Title      string
}

type view struct {
	Query           string
	Strict          bool
	StrictAvailable bool
	Rows            []row
}

type completion struct {
	EntryPath      string
	ClientState    []byte
	MatchPersisted bool
}

// session is an autofill flow driven either in-process or through the daemon.
type session interface {
	Start(ctx context.Context) (view, error)
	SetQuery(ctx context.Context, text string) (view, error)
	SetStrict(ctx context.Context, strict bool) (view, error)
	Select(ctx context.Context, path string, clear, persist bool) (completion, error)
	Cancel(ctx context.Context) error
}

type localSession struct {
	flow    *flow.Flow
	updates <-chan search.Delivery
	stop    func()
}

func newLocalSession(f *flow.Flow) *localSession {
	updates, stop := f.Subscribe()
	return &localSession{flow: f, updates: updates, stop: stop}
}

func (s *localSession) await(ctx context.Context, gen uint64) (view, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	for {
		select {
		case d, ok := <-s.updates:
			if !ok {
				return view{}, flow.ErrInvalidState
			}
			if d.Generation < gen {
				continue
			}
			if d.Err != nil {
				return view{}, d.Err
			}
			return s.viewOf(d), nil
		case <-ctx.Done():
			return view{}, ctx.Err()
		}
	}
}

func (s *localSession) viewOf(d search.Delivery) view {
	v := view{
		Query:           d.Query.Text,
		Strict:          d.Query.Filter == models.StrictDomain,
		StrictAvailable: s.flow.StrictAvailable(),
	}
	for _, r := range d.Results {
		rw := row{Path: r.Entry.RelPath, Breadcrumb: r.Label.Breadcrumb(), Title: r.Label.Title()}
		rw.Identifier, _ = r.Label.Identifier()
		rw.Account, _ = r.Label.Account()
		rw.Subtitle, _ = r.Label.Subtitle()
		v.Rows = append(v.Rows, rw)
	}
	return v
}

func (s *localSession) Start(ctx context.Context) (view, error) {
	gen, err := s.flow.Start()
	if err != nil {
		return view{}, err
	}
	return s.await(ctx, gen)
}

func (s *localSession) SetQuery(ctx context.Context, text string) (view, error) {
	gen, err := s.flow.SetQuery(text)
	if err != nil {
		return view{}, err
	}
	return s.await(ctx, gen)
}

func (s *localSession) SetStrict(ctx context.Context, strict bool) (view, error) {
	gen, err := s.flow.SetStrict(strict)
	if err != nil {
		return view{}, err
	}
	if latest, ok := s.flow.Latest(); ok && latest.Generation == gen {
		return s.viewOf(latest), nil
	}
	return s.await(ctx, gen)
}

func (s *localSession) Select(ctx context.Context, path string, clear, persist bool) (completion, error) {
	done, err := s.flow.Select(ctx, path, flow.SelectOptions{Clear: clear, Persist: persist})
	if err != nil {
		return completion{}, err
	}
	s.stop()
	return completion(done), nil
}

func (s *localSession) Cancel(context.Context) error {
	s.flow.Cancel()
	s.stop()
	return nil
}

type remoteSession struct {
	client *client.Client
	origin client.Origin
	state  []byte
	fill   client.Fill
}

func (s *remoteSession) viewOf(r client.Results) view {
	v := view{Query: r.Query, Strict: r.Strict, StrictAvailable: s.fill.StrictAvailable}
	for _, res := range r.Results {
		v.Rows = append(v.Rows, row{
			Path: res.Path, Breadcrumb: res.Breadcrumb, Identifier: res.Identifier,
			Account: res.Account, Subtitle: res.Subtitle, Title: res.Title,
		})
	}
	return v
}

func (s *remoteSession) wait(ctx context.Context, gen uint64) (view, error) {
	r, err := s.client.WaitResults(ctx, s.fill.FlowID, gen)
	if err != nil {
		return view{}, err
	}
	return s.viewOf(r), nil
}

func (s *remoteSession) Start(ctx context.Context) (view, error) {
	fill, err := s.client.StartFill(ctx, s.origin, s.state)
	if err != nil {
		return view{}, err
	}
	s.fill = fill
	return s.wait(ctx, fill.Generation)
}

func (s *remoteSession) SetQuery(ctx context.Context, text string) (view, error) {
	gen, err := s.client.SetQuery(ctx, s.fill.FlowID, text)
	if err != nil {
		return view{}, err
	}
	return s.wait(ctx, gen)
}

func (s *remoteSession) SetStrict(ctx context.Context, strict bool) (view, error) {
	gen, err := s.client.SetStrict(ctx, s.fill.FlowID, strict)
	if err != nil {
		return view{}, err
	}
	return s.wait(ctx, gen)
}

func (s *remoteSession) Select(ctx context.Context, path string, clear, persist bool) (completion, error) {
	done, err := s.client.Select(ctx, s.fill.FlowID, path, clear, persist)
	if err != nil {
		return completion{}, err
	}
	return completion{EntryPath: done.EntryPath, ClientState: done.ClientState, MatchPersisted: done.MatchPersisted}, nil
}

func (s *remoteSession) Cancel(ctx context.Context) error {
	return s.client.Cancel(ctx, s.fill.FlowID)
}
