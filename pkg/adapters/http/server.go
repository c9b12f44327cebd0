// Package http exposes a Strata system as a JSON API.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aretw0/strata"
	"github.com/aretw0/strata/pkg/cache"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Engine defines the operations of the Strata system served over HTTP.
type Engine interface {
	Generate(ctx context.Context, taskName string, vars map[string]any, target string) (*domain.Generation, error)
	Dependencies(ctx context.Context, kind domain.Kind, name string) ([]domain.Dependency, error)
	Resolve(ctx context.Context, kind domain.Kind, name string, vars map[string]any) (*domain.ResolvedNode, error)
	ValidateAll(ctx context.Context) *domain.Report
	CheckConflicts(ctx context.Context) ([]domain.Conflict, error)
	Stats(ctx context.Context) (domain.CorpusStats, error)
	CacheStats() cache.Stats
	SweepCache() int
	ClearCache()
	Invalidate(ctx context.Context, kind domain.Kind, id int64) (int, error)
	Targets() []string
	Watch(ctx context.Context) (<-chan string, error)
}

var _ Engine = (*strata.System)(nil)

// Server serves an Engine.
type Server struct {
	Engine Engine

	logger   *zap.Logger
	gatherer prometheus.Gatherer
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics exposes gatherer on GET /metrics.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = gatherer
	}
}

// NewHandler creates a new HTTP handler for the engine.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{
		Engine: engine,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Post("/generate", s.Generate)
	r.Get("/targets", s.GetTargets)
	r.Route("/rules/{kind}/{name}", func(r chi.Router) {
		r.Get("/dependencies", s.GetDependencies)
		r.Get("/tree", s.GetTree)
	})
	r.Get("/validate", s.Validate)
	r.Get("/conflicts", s.GetConflicts)
	r.Get("/stats", s.GetStats)
	r.Route("/cache", func(r chi.Router) {
		r.Get("/stats", s.GetCacheStats)
		r.Post("/sweep", s.SweepCache)
		r.Post("/clear", s.ClearCache)
		r.Post("/invalidate", s.InvalidateCache)
	})
	r.Get("/events", s.SubscribeEvents)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GenerateRequest is the body of POST /generate.
type GenerateRequest struct {
	Task      string         `json:"task"`
	Variables map[string]any `json:"variables"`
	Target    string         `json:"target"`
}

// GenerateResponse is the body returned by POST /generate.
type GenerateResponse struct {
	ID          string              `json:"id"`
	Task        string              `json:"task"`
	Target      string              `json:"target"`
	Prompt      string              `json:"prompt"`
	RawPrompt   string              `json:"raw_prompt"`
	Cached      bool                `json:"cached"`
	Degraded    bool                `json:"degraded"`
	Diagnostics []domain.Diagnostic `json:"diagnostics"`
	TimingMS    map[string]float64  `json:"timing_ms"`
}

// InvalidateRequest is the body of POST /cache/invalidate.
type InvalidateRequest struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
}

// Generate handles POST /generate.
func (s *Server) Generate(w http.ResponseWriter, r *http.Request) {
	var body GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.fail(w, http.StatusBadRequest, errors.Wrap(err, "invalid request body"))
		return
	}
	if strings.TrimSpace(body.Task) == "" {
		s.fail(w, http.StatusBadRequest, errors.New("task is required"))
		return
	}

	gen, err := s.Engine.Generate(r.Context(), body.Task, body.Variables, body.Target)
	if err != nil {
		s.fail(w, statusOf(err), err)
		return
	}

	diagnostics := gen.Diagnostics
	if diagnostics == nil {
		diagnostics = []domain.Diagnostic{}
	}
	s.respond(w, http.StatusOK, GenerateResponse{
		ID:          gen.ID,
		Task:        gen.TaskName,
		Target:      gen.Target,
		Prompt:      gen.Text,
		RawPrompt:   gen.RawText,
		Cached:      gen.Cached,
		Degraded:    gen.Degraded(),
		Diagnostics: diagnostics,
		TimingMS: map[string]float64{
			"resolve": float64(gen.Timing.Resolve.Microseconds()) / 1000,
			"render":  float64(gen.Timing.Render.Microseconds()) / 1000,
			"total":   float64(gen.Timing.Total.Microseconds()) / 1000,
		},
	})
}

// GetDependencies handles GET /rules/{kind}/{name}/dependencies.
func (s *Server) GetDependencies(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	name := chi.URLParam(r, "name")
	deps, err := s.Engine.Dependencies(r.Context(), kind, name)
	if err != nil {
		s.fail(w, statusOf(err), err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"kind":         kind,
		"name":         name,
		"dependencies": deps,
	})
}

// GetTree handles GET /rules/{kind}/{name}/tree. Query parameters become variables.
func (s *Server) GetTree(w http.ResponseWriter, r *http.Request) {
	kind, err := domain.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	vars := make(map[string]any)
	for k, v := range r.URL.Query() {
		vars[k] = v[len(v)-1]
	}
	tree, err := s.Engine.Resolve(r.Context(), kind, chi.URLParam(r, "name"), vars)
	if err != nil {
		s.fail(w, statusOf(err), err)
		return
	}
	s.respond(w, http.StatusOK, tree)
}

// Validate handles GET /validate.
func (s *Server) Validate(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.Engine.ValidateAll(r.Context()))
}

// GetConflicts handles GET /conflicts.
func (s *Server) GetConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := s.Engine.CheckConflicts(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"conflicts": conflicts,
		"count":     len(conflicts),
	})
}

// GetStats handles GET /stats.
func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Engine.Stats(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, stats)
}

// GetCacheStats handles GET /cache/stats.
func (s *Server) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.Engine.CacheStats())
}

// SweepCache handles POST /cache/sweep.
func (s *Server) SweepCache(w http.ResponseWriter, r *http.Request) {
	removed := s.Engine.SweepCache()
	s.respond(w, http.StatusOK, map[string]any{"removed": removed, "stats": s.Engine.CacheStats()})
}

// ClearCache handles POST /cache/clear.
func (s *Server) ClearCache(w http.ResponseWriter, r *http.Request) {
	s.Engine.ClearCache()
	s.respond(w, http.StatusOK, map[string]any{"stats": s.Engine.CacheStats()})
}

// InvalidateCache handles POST /cache/invalidate.
func (s *Server) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	var body InvalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.fail(w, http.StatusBadRequest, errors.Wrap(err, "invalid request body"))
		return
	}
	kind, err := domain.ParseKind(body.Kind)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err)
		return
	}
	removed, err := s.Engine.Invalidate(r.Context(), kind, body.ID)
	if err != nil {
		s.fail(w, statusOf(err), err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"removed": removed})
}

// GetTargets handles GET /targets.
func (s *Server) GetTargets(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]any{"targets": s.Engine.Targets()})
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{
		"app":     "strata-http",
		"version": strings.TrimSpace(strata.Version),
	})
}

// SubscribeEvents handles GET /events, streaming corpus changes as
// server-sent events.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.fail(w, http.StatusInternalServerError, errors.New("streaming not supported"))
		return
	}

	events, err := s.Engine.Watch(r.Context())
	if err != nil {
		s.fail(w, http.StatusNotImplemented, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("sse client disconnected")
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: change\ndata: %s\n\n", event)
			flusher.Flush()
		}
	}
}

// statusOf maps engine errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTemplateRender), errors.Is(err, domain.ErrTemplateSyntax):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidRelation):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}
	s.respond(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", zap.Error(err))
	}
}
