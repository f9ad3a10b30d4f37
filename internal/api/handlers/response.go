package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	appMiddleware "github.com/markdave123-py/Cadence/internal/api/middlewares"
	"github.com/markdave123-py/Cadence/internal/core"
	"github.com/markdave123-py/Cadence/internal/models"
)

const acceptedMessage = "accepted, processing in background"

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeAccepted(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data, Message: acceptedMessage})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError && !errors.Is(err, core.ErrSchemaMissing) {
		msg = http.StatusText(status)
	}
	entry := log.WithError(err).WithFields(log.Fields{"path": r.URL.Path, "status": status})
	if status >= 500 {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Message: msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrAlreadyProcessing):
		return http.StatusConflict
	case errors.Is(err, core.ErrEmbeddingFailure),
		errors.Is(err, core.ErrModelCallFailure),
		errors.Is(err, core.ErrMalformedModelOutput):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return core.Validationf("invalid request body: %v", err)
	}
	return nil
}

func authFrom(r *http.Request) (models.AuthContext, error) {
	auth, ok := appMiddleware.AuthFromContext(r.Context())
	if !ok {
		return models.AuthContext{}, core.ErrUnauthorized
	}
	return auth, nil
}
