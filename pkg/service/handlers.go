package service

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/flagforge/flagforge/pkg/model"
	"github.com/flagforge/flagforge/pkg/pipeline"
)

func (s *Service) handleListProjects(w http.ResponseWriter, _ *http.Request) {
	projects, err := s.store.ListProjects()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Service) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")

	if err := s.store.Create(project, map[string]*model.FlagConfig{}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"project": project})
}

func (s *Service) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(chi.URLParam(r, "project")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleListFlags(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	flags, exists, err := s.store.Read(project)
	if err != nil {
		writeError(w, err)
		return
	}
	if !exists {
		writeError(w, &pipeline.NotFoundError{Resource: "project", Name: project})
		return
	}
	writeJSON(w, http.StatusOK, flags)
}

func (s *Service) handleGetFlag(w http.ResponseWriter, r *http.Request) {
	project := chi.URLParam(r, "project")
	key := chi.URLParam(r, "key")

	flags, exists, err := s.store.Read(project)
	if err != nil {
		writeError(w, err)
		return
	}
	if !exists {
		writeError(w, &pipeline.NotFoundError{Resource: "project", Name: project})
		return
	}
	flag, ok := flags[key]
	if !ok {
		writeError(w, &pipeline.NotFoundError{Resource: "flag", Name: key})
		return
	}
	writeJSON(w, http.StatusOK, flag)
}

// decodeFlagConfig shape-checks raw JSON against the flag schema before
// decoding it, so a structurally broken document is rejected with the schema
// error rather than a half-filled struct.
func (s *Service) decodeFlagConfig(raw []byte) (*model.FlagConfig, error) {
	if err := checkFlagShape(s.schema, raw); err != nil {
		return nil, err
	}
	var config model.FlagConfig
	if err := json.Unmarshal(raw, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

func (s *Service) handleCreateFlag(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		badRequest(w, err)
		return
	}
	config, err := s.decodeFlagConfig(raw)
	if err != nil {
		badRequest(w, err)
		return
	}

	_, err = s.pipeline.Apply(r.Context(), pipeline.Request{
		Project: chi.URLParam(r, "project"),
		Key:     chi.URLParam(r, "key"),
		Action:  pipeline.ActionCreate,
		Config:  config,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, config)
}

type updateFlagRequest struct {
	Config *json.RawMessage `json:"config"`
	NewKey string           `json:"newKey,omitempty"`
}

func (s *Service) handleUpdateFlag(w http.ResponseWriter, r *http.Request) {
	var body updateFlagRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, err)
		return
	}
	if body.Config == nil {
		badRequest(w, fmt.Errorf("config is required"))
		return
	}
	config, err := s.decodeFlagConfig(*body.Config)
	if err != nil {
		badRequest(w, err)
		return
	}

	_, err = s.pipeline.Apply(r.Context(), pipeline.Request{
		Project: chi.URLParam(r, "project"),
		Key:     chi.URLParam(r, "key"),
		Action:  pipeline.ActionUpdate,
		Config:  config,
		NewKey:  body.NewKey,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, config)
}

func (s *Service) handleDeleteFlag(w http.ResponseWriter, r *http.Request) {
	_, err := s.pipeline.Apply(r.Context(), pipeline.Request{
		Project: chi.URLParam(r, "project"),
		Key:     chi.URLParam(r, "key"),
		Action:  pipeline.ActionDelete,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type proposeRequest struct {
	Config        *json.RawMessage `json:"config,omitempty"`
	Action        pipeline.Action  `json:"action"`
	Title         string           `json:"title,omitempty"`
	Description   string           `json:"description,omitempty"`
	IntegrationID string           `json:"integrationId,omitempty"`
	NewKey        string           `json:"newKey,omitempty"`
}

func (s *Service) handlePropose(w http.ResponseWriter, r *http.Request) {
	var body proposeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		badRequest(w, err)
		return
	}
	if body.Action == "" {
		body.Action = pipeline.ActionUpdate
	}

	var config *model.FlagConfig
	if body.Action != pipeline.ActionDelete {
		if body.Config == nil {
			badRequest(w, fmt.Errorf("config is required for action %q", body.Action))
			return
		}
		var err error
		config, err = s.decodeFlagConfig(*body.Config)
		if err != nil {
			badRequest(w, err)
			return
		}
	}

	result, err := s.pipeline.Apply(r.Context(), pipeline.Request{
		Project:       chi.URLParam(r, "project"),
		Key:           chi.URLParam(r, "key"),
		Action:        body.Action,
		Config:        config,
		NewKey:        body.NewKey,
		Propose:       true,
		IntegrationID: body.IntegrationID,
		Title:         body.Title,
		Description:   body.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleRawExport flattens every project into a single project/flagKey map
// and serves it as yaml; the relay proxy's HTTP retriever consumes this.
func (s *Service) handleRawExport(w http.ResponseWriter, r *http.Request) {
	projects := []string{}
	if project := r.URL.Query().Get("project"); project != "" {
		projects = append(projects, project)
	} else {
		var err error
		projects, err = s.store.ListProjects()
		if err != nil {
			writeError(w, err)
			return
		}
	}
	sort.Strings(projects)

	flattened := map[string]*model.FlagConfig{}
	for _, project := range projects {
		flags, exists, err := s.store.Read(project)
		if err != nil {
			writeError(w, err)
			return
		}
		if !exists {
			writeError(w, &pipeline.NotFoundError{Resource: "project", Name: project})
			return
		}
		for key, flag := range flags {
			flattened[project+"/"+key] = flag
		}
	}

	raw, err := yaml.Marshal(flattened)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Service) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.relay.Refresh(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
