package http

import (
	"encoding/base64"
	"net/http"

	"github.com/atinyakov/GophFill/internal/flow"
	"github.com/atinyakov/GophFill/internal/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// FlowFactory creates a flow for an autofill request with the daemon's dependencies.
type FlowFactory func(req flow.Request) (*flow.Flow, error)

// FillHandler serves the autofill flow endpoints.
type FillHandler struct {
	NewFlow FlowFactory
	Flows   *flow.Registry
	Log     *zap.Logger
}

type createFillRequest struct {
	ClientState string `json:"client_state" validate:"required,base64"`
	WebOrigin   string `json:"web_origin" validate:"max=2048"`
	AppOrigin   string `json:"app_origin" validate:"max=512"`
}

type createFillResponse struct {
	FlowID          string `json:"flow_id"`
	Origin          string `json:"origin"`
	Query           string `json:"query"`
	Strict          bool   `json:"strict"`
	StrictAvailable bool   `json:"strict_available"`
	State           string `json:"state"`
	Generation      uint64 `json:"generation"`
}

type queryRequest struct {
	Text   *string `json:"text" validate:"omitempty,max=256"`
	Strict *bool   `json:"strict"`
}

type selectRequest struct {
	EntryPath string `json:"entry_path" validate:"required,max=4096"`
	Clear     bool   `json:"clear"`
	Persist   bool   `json:"persist"`
}

type completionResponse struct {
	EntryPath      string `json:"entry_path"`
	ClientState    string `json:"client_state"`
	MatchPersisted bool   `json:"match_persisted"`
}

// Create handles POST /api/fill: it validates the request, starts a flow and returns its ID.
func (h *FillHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createFillRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	state, err := base64.StdEncoding.DecodeString(req.ClientState)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	f, err := h.NewFlow(flow.Request{ClientState: state, WebOrigin: req.WebOrigin, AppOrigin: req.AppOrigin})
	if err != nil {
		writeError(w, err)
		return
	}
	gen, err := f.Start()
	if err != nil {
		f.Cancel()
		writeError(w, err)
		return
	}
	id := h.Flows.Add(f)
	h.Log.Debug("autofill flow started", zap.String("flow", id), zap.String("origin", f.Origin().Key()))

	q := f.Query()
	writeJSON(w, http.StatusCreated, createFillResponse{
		FlowID:          id,
		Origin:          f.Origin().Key(),
		Query:           q.Text,
		Strict:          q.Filter == models.StrictDomain,
		StrictAvailable: f.StrictAvailable(),
		State:           f.State().String(),
		Generation:      gen,
	})
}

// Query handles PUT /api/fill/{id}/query. Text and strict are both optional.
func (h *FillHandler) Query(w http.ResponseWriter, r *http.Request) {
	f, err := h.Flows.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req queryRequest
	if err := decode(r, &req); err != nil || req.empty() {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	gen, err := applyQuery(f, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]uint64{"generation": gen})
}

func (q queryRequest) empty() bool { return q.Text == nil && q.Strict == nil }

func applyQuery(f *flow.Flow, req queryRequest) (uint64, error) {
	var gen uint64
	var err error
	if req.Strict != nil {
		if gen, err = f.SetStrict(*req.Strict); err != nil {
			return 0, err
		}
	}
	if req.Text != nil {
		if gen, err = f.SetQuery(*req.Text); err != nil {
			return 0, err
		}
	}
	return gen, nil
}

// Results handles GET /api/fill/{id}/results with the latest delivered results.
func (h *FillHandler) Results(w http.ResponseWriter, r *http.Request) {
	f, err := h.Flows.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	d, ok := f.Latest()
	if !ok {
		writeJSON(w, http.StatusOK, pendingView(f.Query()))
		return
	}
	if d.Err != nil {
		writeError(w, d.Err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(d))
}

// Select handles POST /api/fill/{id}/select and completes the flow.
func (h *FillHandler) Select(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	f, err := h.Flows.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	var req selectRequest
	if err := decode(r, &req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	done, err := f.Select(r.Context(), req.EntryPath, flow.SelectOptions{Clear: req.Clear, Persist: req.Persist})
	if err != nil {
		writeError(w, err)
		return
	}
	_ = h.Flows.Remove(id)

	writeJSON(w, http.StatusOK, completionResponse{
		EntryPath:      done.EntryPath,
		ClientState:    base64.StdEncoding.EncodeToString(done.ClientState),
		MatchPersisted: done.MatchPersisted,
	})
}

// Cancel handles DELETE /api/fill/{id}.
func (h *FillHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.Flows.Remove(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}
