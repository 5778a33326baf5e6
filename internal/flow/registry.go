package flow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrFlowNotFound is returned for unknown or expired flow IDs.
var ErrFlowNotFound = errors.New("flow not found")

// Registry holds the live flows of the daemon by ID.
type Registry struct {
	mu    sync.Mutex
	flows map[string]*Flow
	now   func() time.Time
	log   *zap.Logger
}

// NewRegistry returns an empty Registry.
func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{flows: make(map[string]*Flow), now: time.Now, log: log}
}

// Add registers f and returns its new ID.
func (r *Registry) Add(f *Flow) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.flows[id] = f
	r.mu.Unlock()
	return id
}

// Get returns the flow registered under id.
func (r *Registry) Get(id string) (*Flow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.flows[id]
	if !ok {
		return nil, ErrFlowNotFound
	}
	return f, nil
}

// Remove cancels and forgets the flow registered under id.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	f, ok := r.flows[id]
	delete(r.flows, id)
	r.mu.Unlock()
	if !ok {
		return ErrFlowNotFound
	}
	f.Cancel()
	return nil
}

// Len returns the number of registered flows.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.flows)
}

// Sweep cancels and removes flows idle for longer than idle, and finished flows.
// It returns the number removed.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)
	var expired []*Flow

	r.mu.Lock()
	for id, f := range r.flows {
		if f.State().Terminal() || f.LastActive().Before(cutoff) {
			expired = append(expired, f)
			delete(r.flows, id)
		}
	}
	r.mu.Unlock()

	for _, f := range expired {
		f.Cancel()
	}
	return len(expired)
}

// StartSweeper runs Sweep every interval until ctx is done.
func (r *Registry) StartSweeper(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Sweep(idle); n > 0 {
					r.log.Info("expired idle autofill flows", zap.Int("count", n))
				}
			}
		}
	}()
}

// CancelAll cancels and removes every flow.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	flows := r.flows
	r.flows = make(map[string]*Flow)
	r.mu.Unlock()
	for _, f := range flows {
		f.Cancel()
	}
}
