// Package api serves the pipeline and lead operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/metrics"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/outreach"
	"github.com/sells-group/leadgen-cli/internal/pipeline"
	"github.com/sells-group/leadgen-cli/internal/store"
)

// Runner executes pipeline stages. *pipeline.Coordinator implements it.
type Runner interface {
	Ingest(ctx context.Context, opts pipeline.IngestOptions) (model.IngestSummary, string, error)
	Qualify(ctx context.Context, opts pipeline.QualifyOptions) (model.QualifySummary, string, error)
	Outreach(ctx context.Context, opts pipeline.OutreachOptions) (outreach.RunSummary, string, error)
	SendOne(ctx context.Context, leadID int64, dryRun *bool) (outreach.Result, error)
}

// Options configures the router.
type Options struct {
	AllowedOrigins []string
}

// Server holds the handler dependencies.
type Server struct {
	store   store.Store
	runner  Runner
	service *pipeline.Service
	metrics *metrics.Metrics
	opts    Options
}

// NewServer creates a Server. runner may be nil, in which case the run
// endpoints answer 503.
func NewServer(st store.Store, runner Runner, m *metrics.Metrics, opts Options) *Server {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{
		store:   st,
		runner:  runner,
		service: pipeline.NewService(st),
		metrics: m,
		opts:    opts,
	}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/ingestion", func(r chi.Router) {
		r.Post("/run", s.runIngest)
		r.Post("/qualify", s.runQualify)
		r.Get("/status", s.ingestionStatus)
	})

	r.Route("/leads", func(r chi.Router) {
		r.Get("/", s.listLeads)
		r.Get("/stats", s.leadStats)
		r.Get("/{id}", s.getLead)
		r.Patch("/{id}/status", s.updateLeadStatus)
	})

	r.Route("/outreach", func(r chi.Router) {
		r.Post("/run", s.runOutreach)
		r.Get("/history", s.outreachHistory)
		r.Post("/{id}", s.sendOne)
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// storeError maps store and lifecycle errors onto HTTP statuses.
func storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, store.ErrStatusConflict),
		errors.Is(err, outreach.ErrNotQualified):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, outreach.ErrNoTransport):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		zap.L().Error("api: request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// queryInt reads a non-negative integer query parameter; absent means 0.
func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}

// queryBool reads an optional boolean query parameter.
func queryBool(r *http.Request, key string) (*bool, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errors.New(key + " must be a boolean")
	}
	return &b, nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("id must be a positive integer")
	}
	return id, nil
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
