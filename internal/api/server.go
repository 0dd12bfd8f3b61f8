// Package api exposes the HTTP interface for the sync service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/alpinisme/formation-sync/internal/course"
	"github.com/alpinisme/formation-sync/internal/ratelimit"
)

// syncRunner is the slice of the orchestrator the API needs.
type syncRunner interface {
	Run(ctx context.Context) (course.SyncResult, error)
	LastSyncTimestamp(ctx context.Context) (time.Time, error)
}

// digestDispatcher triggers one notification pass.
type digestDispatcher interface {
	DispatchToday(ctx context.Context) (course.NotificationResult, error)
}

// courseReader is the read side of the store exposed over HTTP.
type courseReader interface {
	GetByReference(ctx context.Context, reference string) (course.Course, error)
	List(ctx context.Context) ([]course.Course, error)
}

// Server wires HTTP handlers to the sync pipeline and the course store.
type Server struct {
	router     chi.Router
	syncer     syncRunner
	dispatcher digestDispatcher
	courses    courseReader
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The limiter
// guards the /v1 surface only; health and metrics endpoints stay open for
// orchestrators and scrapers.
func NewServer(syncer syncRunner, dispatcher digestDispatcher, courses courseReader, limiter *ratelimit.Limiter, logger *zap.Logger) *Server {
	s := &Server{
		syncer:     syncer,
		dispatcher: dispatcher,
		courses:    courses,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(ratelimit.Middleware(limiter))
		r.Post("/sync", s.runSync)
		r.Get("/sync/last", s.lastSync)
		r.Post("/notifications/dispatch", s.dispatchNotifications)
		r.Route("/courses", func(r chi.Router) {
			r.Get("/", s.listCourses)
			r.Get("/{reference}", s.getCourse)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := s.syncer.LastSyncTimestamp(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) runSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.syncer.Run(r.Context())
	if err != nil {
		s.logger.Error("sync run failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "sync failed: upstream catalog unavailable")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) lastSync(w http.ResponseWriter, r *http.Request) {
	ts, err := s.syncer.LastSyncTimestamp(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read sync state")
		return
	}
	payload := map[string]any{"last_synced_at": nil}
	if !ts.IsZero() {
		payload["last_synced_at"] = ts.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) dispatchNotifications(w http.ResponseWriter, r *http.Request) {
	result, err := s.dispatcher.DispatchToday(r.Context())
	if err != nil {
		s.logger.Error("notification dispatch failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "notification dispatch failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) listCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := s.courses.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list courses")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(courses),
		"courses": courses,
	})
}

func (s *Server) getCourse(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	c, err := s.courses.GetByReference(r.Context(), reference)
	if err != nil {
		if errors.Is(err, course.ErrNotFound) {
			writeError(w, http.StatusNotFound, "course not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load course")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type requestIDKey struct{}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
