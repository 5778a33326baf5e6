// Package http provides the REST and WebSocket handlers of the autofill daemon and its router.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atinyakov/GophFill/internal/directory"
	"github.com/atinyakov/GophFill/internal/flow"
	"github.com/atinyakov/GophFill/internal/models"
	"github.com/atinyakov/GophFill/internal/service"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, flow.ErrFlowNotFound):
		return http.StatusNotFound
	case errors.Is(err, flow.ErrMissingRequestState),
		errors.Is(err, models.ErrInvalidOrigin),
		errors.Is(err, models.ErrMissingOrigin),
		errors.Is(err, models.ErrAmbiguousOrigin):
		return http.StatusBadRequest
	case errors.Is(err, flow.ErrUnknownEntry), errors.Is(err, flow.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, flow.ErrEntryGone):
		return http.StatusGone
	case errors.Is(err, service.ErrStoreWrite):
		return http.StatusServiceUnavailable
	case errors.Is(err, directory.ErrMalformedEntry):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into dst and validates it.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

// Health handles GET /api/health.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
