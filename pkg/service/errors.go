package service

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/flagforge/flagforge/pkg/gitprovider"
	"github.com/flagforge/flagforge/pkg/model"
	"github.com/flagforge/flagforge/pkg/pipeline"
	"github.com/flagforge/flagforge/pkg/registry"
	"github.com/flagforge/flagforge/pkg/store"
)

type errorResponse struct {
	Error      string            `json:"error"`
	Violations []model.Violation `json:"violations,omitempty"`
}

// writeError maps the publish error taxonomy onto HTTP status codes:
// validation 400, not found 404, conflict 409, git publish 502, everything
// touching storage 500.
func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var (
		validationErr *pipeline.ValidationError
		notFoundErr   *pipeline.NotFoundError
		conflictErr   *pipeline.ConflictError
		publishErr    *gitprovider.PublishError
		corruptionErr *store.CorruptionError
		storageErr    *store.StorageError
	)

	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
		resp.Violations = validationErr.Violations
	case errors.As(err, &notFoundErr),
		errors.Is(err, store.ErrProjectNotFound),
		errors.Is(err, registry.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &conflictErr), errors.Is(err, store.ErrProjectExists):
		status = http.StatusConflict
	case errors.As(err, &publishErr):
		status = http.StatusBadGateway
	case errors.Is(err, pipeline.ErrNoIntegration),
		errors.Is(err, store.ErrInvalidProject):
		status = http.StatusBadRequest
	case errors.As(err, &corruptionErr), errors.As(err, &storageErr):
		status = http.StatusInternalServerError
	}

	if status >= http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// badRequest reports a request that could not be parsed at all.
func badRequest(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
