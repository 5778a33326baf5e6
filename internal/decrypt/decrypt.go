// Package decrypt hands the entry chosen in an autofill flow to the decryption step.
package decrypt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/atinyakov/GophFill/internal/flow"
	"github.com/atinyakov/GophFill/internal/models"
	"go.uber.org/zap"
)

// ErrEntryGone is returned when the selected entry disappeared from the store.
var ErrEntryGone = flow.ErrEntryGone

// Lookup resolves a store-relative path; *corpus.Store and *corpus.Watched satisfy it.
type Lookup interface {
	Lookup(relPath string) (models.PasswordEntry, bool)
}

// Checked confirms the entry still exists and records the request. The daemon returns the
// entry path to the bridge, which performs the decryption itself.
type Checked struct {
	Store Lookup
	Log   *zap.Logger
}

func (c Checked) RequestDecrypt(_ context.Context, req flow.DecryptRequest) error {
	if _, ok := c.Store.Lookup(req.EntryPath); !ok {
		return fmt.Errorf("%s: %w", req.EntryPath, ErrEntryGone)
	}
	c.Log.Info("decryption handed off", zap.String("entry", req.EntryPath))
	return nil
}

// Handoff is the JSON document written by JSONHandoff.
type Handoff struct {
	EntryPath   string `json:"entry_path"`
	AbsPath     string `json:"abs_path"`
	ClientState string `json:"client_state"`
}

// JSONHandoff writes one JSON document per request to W for a decrypting process.
type JSONHandoff struct {
	mu sync.Mutex
	W  io.Writer
}

func (h *JSONHandoff) RequestDecrypt(_ context.Context, req flow.DecryptRequest) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	err := json.NewEncoder(h.W).Encode(Handoff{
		EntryPath:   req.EntryPath,
		AbsPath:     req.AbsPath,
		ClientState: base64.StdEncoding.EncodeToString(req.ClientState),
	})
	if err != nil {
		return fmt.Errorf("write handoff: %w", err)
	}
	return nil
}
