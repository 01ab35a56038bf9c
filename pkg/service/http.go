package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
	"github.com/xeipuuv/gojsonschema"

	"github.com/flagforge/flagforge/pkg/notifier"
	"github.com/flagforge/flagforge/pkg/pipeline"
	"github.com/flagforge/flagforge/pkg/registry"
	"github.com/flagforge/flagforge/pkg/store"
)

type Config struct {
	Port int
}

// Service is the HTTP surface consumed by the dashboard.
type Service struct {
	cfg      Config
	store    *store.Store
	registry *registry.Registry
	pipeline *pipeline.Pipeline
	relay    *notifier.RelayProxy
	schema   *gojsonschema.Schema
}

func New(cfg Config, s *store.Store, r *registry.Registry, p *pipeline.Pipeline, relay *notifier.RelayProxy) (*Service, error) {
	schema, err := compileFlagSchema()
	if err != nil {
		return nil, fmt.Errorf("compile flag schema: %w", err)
	}
	return &Service{
		cfg:      cfg,
		store:    s,
		registry: r,
		pipeline: p,
		relay:    relay,
		schema:   schema,
	}, nil
}

// Router assembles the full route table.
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/projects", s.handleListProjects)
		r.Post("/projects/{project}", s.handleCreateProject)
		r.Delete("/projects/{project}", s.handleDeleteProject)
		r.Get("/projects/{project}/flags", s.handleListFlags)

		r.Route("/projects/{project}/flags/{key}", func(r chi.Router) {
			r.Get("/", s.handleGetFlag)
			r.Post("/", s.handleCreateFlag)
			r.Put("/", s.handleUpdateFlag)
			r.Delete("/", s.handleDeleteFlag)
			r.Post("/propose", s.handlePropose)
		})

		r.Get("/flags/raw", s.handleRawExport)
		r.Post("/admin/refresh", s.handleRefresh)

		r.Route("/integrations", func(r chi.Router) {
			r.Get("/", s.handleListIntegrations)
			r.Post("/", s.handleUpsertIntegration)
			r.Get("/{id}", s.handleGetIntegration)
			r.Put("/{id}", s.handleUpsertIntegration)
			r.Delete("/{id}", s.handleDeleteIntegration)
		})

		r.Route("/{kind:flagsets|notifiers|exporters|retrievers}", func(r chi.Router) {
			r.Get("/", s.handleListRecords)
			r.Post("/", s.handleUpsertRecord)
			r.Get("/{id}", s.handleGetRecord)
			r.Put("/{id}", s.handleUpsertRecord)
			r.Delete("/{id}", s.handleDeleteRecord)
		})
	})

	return r
}

// Serve runs the HTTP server until ctx is canceled, then shuts down
// gracefully.
func (s *Service) Serve(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("http service listening")
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request handled")
	})
}
