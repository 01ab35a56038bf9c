package service

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flagforge/flagforge/pkg/registry"
)

func (s *Service) handleListIntegrations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.ListIntegrations())
}

func (s *Service) handleGetIntegration(w http.ResponseWriter, r *http.Request) {
	integration, ok := s.registry.Integration(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, registry.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, integration.Masked())
}

func (s *Service) handleUpsertIntegration(w http.ResponseWriter, r *http.Request) {
	var integration registry.GitIntegration
	if err := json.NewDecoder(r.Body).Decode(&integration); err != nil {
		badRequest(w, err)
		return
	}

	status := http.StatusCreated
	if id := chi.URLParam(r, "id"); id != "" {
		existing, ok := s.registry.Integration(id)
		if !ok {
			writeError(w, registry.ErrNotFound)
			return
		}
		integration.ID = id
		// a masked token in an update means "keep the stored credential"
		if integration.Token == registry.MaskedValue {
			integration.Token = existing.Token
		}
		status = http.StatusOK
	}

	stored, err := s.registry.UpsertIntegration(integration)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, stored.Masked())
}

func (s *Service) handleDeleteIntegration(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DeleteIntegration(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleListRecords(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List(chi.URLParam(r, "kind")))
}

func (s *Service) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	record, ok := s.registry.Get(chi.URLParam(r, "kind"), chi.URLParam(r, "id"))
	if !ok {
		writeError(w, registry.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Service) handleUpsertRecord(w http.ResponseWriter, r *http.Request) {
	var record registry.Record
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		badRequest(w, err)
		return
	}

	status := http.StatusCreated
	if id := chi.URLParam(r, "id"); id != "" {
		if _, ok := s.registry.Get(chi.URLParam(r, "kind"), id); !ok {
			writeError(w, registry.ErrNotFound)
			return
		}
		record.ID = id
		status = http.StatusOK
	}

	stored, err := s.registry.Upsert(chi.URLParam(r, "kind"), record)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, stored.Masked())
}

func (s *Service) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Delete(chi.URLParam(r, "kind"), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
