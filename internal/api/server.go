// Package api exposes the lead generation commands and queries over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen/internal/leadgen"
	"github.com/sells-group/leadgen/internal/metrics"
	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/internal/search"
	"github.com/sells-group/leadgen/internal/store"
)

// LeadService is the part of *leadgen.Service the HTTP surface uses.
type LeadService interface {
	Page(limit, page int) (int, int)
	GetBusinesses(ctx context.Context, limit, page int) ([]model.PersistedBusiness, error)
	CountBusinesses(ctx context.Context) (int, error)
	GetBusiness(ctx context.Context, id string) (*model.PersistedBusiness, error)
	DeleteBusiness(ctx context.Context, id string) error
	SearchBusiness(ctx context.Context, criteria model.SearchCriteria) (*leadgen.CommandResult, error)
	ConcurrentSearches(ctx context.Context, criteria []model.SearchCriteria) (*leadgen.BatchResult, error)
	GetRun(ctx context.Context, id string) (*model.SearchRun, error)
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.SearchRun, error)
	Ping(ctx context.Context) error
}

// Config holds HTTP surface options.
type Config struct {
	APIKey      string
	CORSOrigins []string
	// MaxBatch caps the number of criteria accepted by the batch endpoint.
	MaxBatch int
	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64
}

// Server wires HTTP handlers to the lead service.
type Server struct {
	router chi.Router
	svc    LeadService
	cfg    Config
}

// NewServer constructs a Server with middleware and routes.
func NewServer(svc LeadService, cfg Config) *Server {
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 50
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	s := &Server{svc: svc, cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Route("/businesses", func(r chi.Router) {
			r.Get("/", s.listBusinesses)
			r.Get("/{id}", s.getBusiness)
			r.Delete("/{id}", s.deleteBusiness)
		})
		r.Route("/searches", func(r chi.Router) {
			r.Post("/", s.searchBusiness)
			r.Post("/batch", s.concurrentSearches)
		})
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.listRuns)
			r.Get("/{id}", s.getRun)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := s.svc.Ping(ctx); err != nil {
		zap.L().Warn("api: readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listBusinesses(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	page, err := intParam(r, "page")
	if err != nil {
		writeError(w, http.StatusBadRequest, "page must be an integer")
		return
	}

	list, err := s.svc.GetBusinesses(r.Context(), limit, page)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	total, err := s.svc.CountBusinesses(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	limit, page = s.svc.Page(limit, page)
	writeJSON(w, http.StatusOK, businessPage{
		Businesses: list,
		Limit:      limit,
		Page:       page,
		Total:      total,
	})
}

func (s *Server) getBusiness(w http.ResponseWriter, r *http.Request) {
	b, err := s.svc.GetBusiness(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) deleteBusiness(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteBusiness(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) searchBusiness(w http.ResponseWriter, r *http.Request) {
	var criteria model.SearchCriteria
	if err := s.decodeBody(w, r, &criteria); err != nil {
		writeDecodeError(w, err, "invalid JSON")
		return
	}

	res, err := s.svc.SearchBusiness(r.Context(), criteria)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newCommandResponse(res))
}

func (s *Server) concurrentSearches(w http.ResponseWriter, r *http.Request) {
	var criteria []model.SearchCriteria
	if err := s.decodeBody(w, r, &criteria); err != nil {
		writeDecodeError(w, err, "invalid JSON: expected an array of search criteria")
		return
	}
	if len(criteria) == 0 {
		writeError(w, http.StatusBadRequest, "at least one search criteria is required")
		return
	}
	if len(criteria) > s.cfg.MaxBatch {
		writeError(w, http.StatusBadRequest, "too many search criteria in one batch")
		return
	}

	res, err := s.svc.ConcurrentSearches(r.Context(), criteria)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newBatchResponse(res))
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	runs, err := s.svc.ListRuns(r.Context(), store.RunFilter{
		Status: model.SearchRunStatus(r.URL.Query().Get("status")),
		Limit:  limit,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.svc.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeDecodeError(w http.ResponseWriter, err error, msg string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, http.StatusBadRequest, msg)
}

func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// statusFor maps service errors onto HTTP statuses.
func statusFor(err error) int {
	var jobErr *search.UpstreamJobError
	switch {
	case leadgen.IsCriteriaError(err):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &jobErr), errors.Is(err, search.ErrEmptyResult):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed", zap.Int("status", status), zap.Error(err))
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeError(w, status, msg)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("api: write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
