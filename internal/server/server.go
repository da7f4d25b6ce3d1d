// Package server exposes the aggregation engine over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"qametrics/internal/cache"
	"qametrics/internal/metrics"
	"qametrics/internal/sonar"
)

// Server holds the request-independent collaborators of the HTTP layer.
type Server struct {
	engine     *metrics.Engine
	quality    sonar.Client
	store      *cache.Store
	cacheTTL   time.Duration
	numSprints int
}

// New wires a server. quality may be nil when no code-quality backend is
// configured; its routes then answer 503.
func New(engine *metrics.Engine, quality sonar.Client, store *cache.Store, cacheTTL time.Duration, numSprints int) *Server {
	if numSprints <= 0 {
		numSprints = 5
	}
	return &Server{
		engine:     engine,
		quality:    quality,
		store:      store,
		cacheTTL:   cacheTTL,
		numSprints: numSprints,
	}
}

// Routes builds the API handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/organization/areaPaths", s.handleAreaPaths)

	mux.HandleFunc("GET /api/v1/testplans", s.handleTestPlans)
	mux.HandleFunc("POST /api/v1/testplans/automation-metrics", s.handleAutomationMetrics)
	mux.HandleFunc("POST /api/v1/testplans/new-automations", s.handleNewAutomations)
	mux.HandleFunc("POST /api/v1/testplans/suites/coverage", s.handleSuiteCoverage)
	mux.HandleFunc("GET /api/v1/testplans/ready-cases", s.handleReadyCases)
	mux.HandleFunc("POST /api/v1/testplans/usage", s.handleUsage)

	mux.HandleFunc("GET /api/v1/teams/bugs-by-sprint", s.handleBugsBySprint)
	mux.HandleFunc("POST /api/v1/teams/bug-details", s.handleBugDetails)
	mux.HandleFunc("POST /api/v1/teams/bug-leakage", s.handleBugLeakage)
	mux.HandleFunc("GET /api/v1/teams/bug-leakage-sprint", s.handleBugLeakageSprint)
	mux.HandleFunc("GET /api/v1/teams/sprints/automation-metrics", s.handleSprintMetrics)

	mux.HandleFunc("GET /api/v1/components/search", s.handleComponentSearch)
	mux.HandleFunc("GET /api/v1/measures/component", s.handleComponentMeasures)

	return accessLog(mux)
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// respondCached serves the key from the store when fresh, otherwise builds
// the payload, caches its JSON rendering, and serves it.
func (s *Server) respondCached(w http.ResponseWriter, key string, build func() (any, error)) {
	if s.store != nil {
		if raw, ok := s.store.Get(key); ok {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, raw)
			return
		}
	}

	payload, err := build()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.store != nil {
		s.store.Set(key, string(raw), s.cacheTTL)
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}
