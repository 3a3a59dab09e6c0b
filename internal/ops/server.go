// Package ops exposes the operational HTTP interface of the crawler:
// health probes, Prometheus metrics and the latest run reports.
package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/basislager/tickerchronik/internal/ticker"
)

// Server wires the ops handlers onto a chi router.
type Server struct {
	router  chi.Router
	logger  *zap.Logger
	reports *reportLog
}

// NewServer constructs a Server with middleware and routes.
func NewServer(logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger:  logger,
		reports: newReportLog(),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/runs/latest", s.latestRuns)
		r.Get("/runs/{source}", s.sourceRun)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// RecordRun stores a finished run report for the status endpoints.
func (s *Server) RecordRun(report ticker.RunReport) {
	s.reports.put(report)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) latestRuns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"runs": s.reports.all()})
}

func (s *Server) sourceRun(w http.ResponseWriter, r *http.Request) {
	source := chi.URLParam(r, "source")
	report, ok := s.reports.get(source)
	if !ok {
		writeError(w, http.StatusNotFound, "no run recorded for source")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// reportLog keeps the most recent report per source.
type reportLog struct {
	mu      sync.RWMutex
	reports map[string]ticker.RunReport
}

func newReportLog() *reportLog {
	return &reportLog{reports: make(map[string]ticker.RunReport)}
}

func (l *reportLog) put(report ticker.RunReport) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports[report.Source] = report
}

func (l *reportLog) get(source string) (ticker.RunReport, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	report, ok := l.reports[source]
	return report, ok
}

func (l *reportLog) all() []ticker.RunReport {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ticker.RunReport, 0, len(l.reports))
	for _, report := range l.reports {
		out = append(out, report)
	}
	return out
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
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
