package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/plan-intel/internal/common"
	"github.com/joseph-ayodele/plan-intel/internal/export"
	"github.com/joseph-ayodele/plan-intel/internal/metrics"
	"github.com/joseph-ayodele/plan-intel/internal/repository"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	checkTimeout    = 3 * time.Second
)

// Check is one dependency probe reported by /healthz.
type Check func(ctx context.Context) error

type HTTPDeps struct {
	Jobs      repository.JobRepository
	Artifacts repository.ArtifactRepository
	Analyses  repository.AnalysisRepository
	Export    *export.Service
	Metrics   *metrics.Metrics // optional; /metrics is not mounted without it
	Checks    map[string]Check
}

// HTTPServer is the read-only job API.
type HTTPServer struct {
	deps   HTTPDeps
	logger *slog.Logger
	router *chi.Mux
}

func NewHTTPServer(deps HTTPDeps, logger *slog.Logger) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &HTTPServer{deps: deps, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}
	r.Route("/v1/jobs/{id}", func(r chi.Router) {
		r.Get("/", s.handleJob)
		r.Get("/analysis", s.handleAnalysis)
		r.Get("/analysis.xlsx", s.handleAnalysisXLSX)
		r.Get("/artifacts", s.handleArtifacts)
	})
	s.router = r
	return s
}

func (s *HTTPServer) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is cancelled, then drains in-flight requests.
func (s *HTTPServer) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http.serve.start", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		s.logger.Info("http.serve.shutdown")
		return srv.Shutdown(sctx)
	}
}

func (s *HTTPServer) handleJob(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	job, err := s.deps.Jobs.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *HTTPServer) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok || !s.requireJob(w, r, id) {
		return
	}
	a, err := s.deps.Analyses.GetByJobID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *HTTPServer) handleAnalysisXLSX(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	b, err := s.deps.Export.ExportAnalysisXLSX(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="takeoff-%s.xlsx"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (s *HTTPServer) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok || !s.requireJob(w, r, id) {
		return
	}
	arts, err := s.deps.Artifacts.ListByJob(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job_id": id, "artifacts": arts})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	code := http.StatusOK
	results := make(map[string]string, len(s.deps.Checks))
	for name, check := range s.deps.Checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("http.health.failed", "check", name, "error", err)
			results[name] = err.Error()
			code = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	status := "ok"
	if code != http.StatusOK {
		status = "degraded"
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": results})
}

func (s *HTTPServer) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := common.ParseUUID("job_id", chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return uuid.Nil, false
	}
	return id, true
}

// requireJob answers 404 for unknown jobs so a missing analysis is not mistaken for one.
func (s *HTTPServer) requireJob(w http.ResponseWriter, r *http.Request, id uuid.UUID) bool {
	ok, err := s.deps.Jobs.Exists(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return false
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return false
	}
	return true
}

func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := common.HTTPStatus(err)
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		s.logger.Error("http.request.error",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		msg = http.StatusText(code)
	}
	writeJSON(w, code, map[string]string{"error": msg})
}

func (s *HTTPServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", middleware.GetReqID(r.Context()),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
