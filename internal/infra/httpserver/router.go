package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	appanalysis "github.com/bryanwahyu/memtriage/internal/application/analysis"
	domain "github.com/bryanwahyu/memtriage/internal/domain/analysis"
	"github.com/bryanwahyu/memtriage/internal/middleware"
)

const (
	maxWebhookBody = 1 << 20
	retryAfterFull = "5"
)

// Ingestor accepts webhook notifications.
type Ingestor interface {
	Handle(ctx context.Context, n domain.Notification) (appanalysis.IngestResult, error)
}

// Options are the router's optional collaborators.
type Options struct {
	APIKeys        map[string]string
	RateLimiter    *middleware.RateLimiter
	CORSOrigins    []string
	Metrics        *middleware.Metrics
	HealthCheckers map[string]middleware.HealthChecker
	Ready          func() bool
	Log            zerolog.Logger
}

type Router struct {
	ingest   Ingestor
	results  domain.ResultRepository
	failures domain.FailureRepository
	log      zerolog.Logger
}

func NewRouter(ingest Ingestor, results domain.ResultRepository, failures domain.FailureRepository, opts Options) http.Handler {
	r := &Router{ingest: ingest, results: results, failures: failures, log: opts.Log}
	mux := chi.NewRouter()

	mux.Use(middleware.Logging(opts.Log))
	if opts.Metrics != nil {
		mux.Use(opts.Metrics.Middleware)
	}
	if len(opts.CORSOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", middleware.HeaderAPIKey},
			MaxAge:         300,
		}))
	}

	mux.Get("/health", middleware.HealthHandler(opts.HealthCheckers))
	mux.Get("/ready", middleware.ReadinessHandler(opts.Ready))
	mux.Get("/live", middleware.LivenessHandler)
	if opts.Metrics != nil {
		mux.Get("/metrics", opts.Metrics.Handler)
	}

	// webhook ingress, optionally authenticated and rate limited
	mux.Group(func(rt chi.Router) {
		if len(opts.APIKeys) > 0 {
			rt.Use(middleware.APIKeyAuth(opts.APIKeys))
		}
		if opts.RateLimiter != nil {
			rt.Use(middleware.RateLimit(opts.RateLimiter))
		}
		rt.Post("/grr/webhook", r.wrap(r.handleWebhook))
		rt.Post("/v1/webhook/grr", r.wrap(r.handleWebhook))
	})

	mux.Get("/analysis/status/{analysis_id}", r.wrap(r.handleGet))
	mux.Route("/v1", func(rt chi.Router) {
		rt.Get("/analyses", r.wrap(r.handleLatest))
		rt.Get("/analyses/{analysis_id}", r.wrap(r.handleGet))
		rt.Get("/analyses/{analysis_id}/failures", r.wrap(r.handleFailures))
		rt.Get("/summary", r.wrap(r.handleSummary))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

type errorBody struct {
	Error string `json:"error"`
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, domain.ErrValidation):
			code = http.StatusBadRequest
		case errors.Is(err, domain.ErrNotFound):
			code = http.StatusNotFound
		case errors.Is(err, domain.ErrQueueFull), errors.Is(err, domain.ErrQueueClosed):
			w.Header().Set("Retry-After", retryAfterFull)
			code = http.StatusServiceUnavailable
		case errors.Is(err, domain.ErrQuotaExceeded):
			code = http.StatusTooManyRequests
		}
		if code == http.StatusInternalServerError {
			r.log.Error().Err(err).Str("path", req.URL.Path).Msg("request failed")
		}
		writeJSON(w, code, errorBody{Error: err.Error()})
	}
}

// POST /grr/webhook
func (r *Router) handleWebhook(w http.ResponseWriter, req *http.Request) error {
	var n domain.Notification
	dec := json.NewDecoder(io.LimitReader(req.Body, maxWebhookBody))
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", domain.ErrValidation, err)
	}
	n.Username = middleware.SanitizeString(n.Username)
	if n.Username == "" {
		n.Username = middleware.GetCallerFromContext(req.Context())
	}

	res, err := r.ingest.Handle(req.Context(), n)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, res)
	return nil
}

// GET /analysis/status/{analysis_id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "analysis_id")
	if err := middleware.ValidateAnalysisID(id); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	res, err := r.results.Get(req.Context(), domain.AnalysisID(id))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, res)
	return nil
}

// GET /v1/analyses?limit=
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	limit, err := middleware.ParseLimit(req.URL.Query().Get("limit"))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	list, err := r.results.Latest(req.Context(), limit)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

// GET /v1/analyses/{analysis_id}/failures
func (r *Router) handleFailures(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "analysis_id")
	if err := middleware.ValidateAnalysisID(id); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if r.failures == nil {
		writeJSON(w, http.StatusOK, []*domain.JobFailure{})
		return nil
	}
	limit, err := middleware.ParseLimit(req.URL.Query().Get("limit"))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	list, err := r.failures.ListByAnalysis(req.Context(), domain.AnalysisID(id), limit)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

// GET /v1/summary?days=
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	days, err := middleware.ParseDays(req.URL.Query().Get("days"))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	s, err := r.results.Summary(req.Context(), days)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, s)
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
