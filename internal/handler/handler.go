package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"build-insight/internal/models"
	"build-insight/internal/report"
	"build-insight/internal/repository"
	"build-insight/internal/service"
)

// Handler exposes the analysis engine over HTTP.
type Handler struct {
	engine *service.Engine
	log    *logrus.Logger
}

// New creates an HTTP handler backed by the engine
func New(engine *service.Engine, log *logrus.Logger) *Handler {
	return &Handler{engine: engine, log: log}
}

// Router assembles the route tree. The metrics endpoint serves the given
// registry.
func (h *Handler) Router(registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.log))

	r.Post("/analyze", h.analyzeBuild)
	r.Post("/analyze-failures", h.analyzeFailures)
	r.Get("/results", h.listResults)
	r.Get("/results/{job_id}", h.getResult)
	r.Get("/results/{job_id}.html", h.getReport)
	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return r
}

// analyzeBuild handles POST /analyze. The default is asynchronous: the job
// is queued and the response carries its id. With ?sync=true the request
// blocks until analysis finishes and returns the full job.
func (h *Handler) analyzeBuild(w http.ResponseWriter, r *http.Request) {
	var req models.AnalyzeBuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if r.URL.Query().Get("sync") == "true" {
		job, err := h.engine.AnalyzeBuildSync(r.Context(), &req)
		if err != nil {
			h.serviceError(w, err)
			return
		}
		h.respond(w, http.StatusOK, job)
		return
	}

	job, err := h.engine.SubmitBuild(r.Context(), &req)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	message := fmt.Sprintf("Analysis job queued. Poll /results/%s for status.", job.ID)
	if req.CallbackURL != "" {
		message = "Analysis job queued. Results will be delivered to callback."
	}
	h.respond(w, http.StatusAccepted, map[string]string{
		"status":  "queued",
		"job_id":  job.ID,
		"message": message,
	})
}

// analyzeFailures handles POST /analyze-failures: caller-supplied failures,
// analyzed synchronously.
func (h *Handler) analyzeFailures(w http.ResponseWriter, r *http.Request) {
	var req models.AnalyzeFailuresRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.engine.AnalyzeFailures(r.Context(), &req)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.respond(w, http.StatusOK, job)
}

// getResult handles GET /results/{job_id}
func (h *Handler) getResult(w http.ResponseWriter, r *http.Request) {
	job, err := h.engine.GetJob(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.respond(w, http.StatusOK, job)
}

// listResults handles GET /results?limit=&offset=
func (h *Handler) listResults(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", repository.DefaultListLimit)
	if err != nil {
		h.error(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		h.error(w, http.StatusBadRequest, "offset must be a positive integer")
		return
	}

	jobs, err := h.engine.ListJobs(r.Context(), limit, offset)
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.respond(w, http.StatusOK, jobs)
}

// getReport handles GET /results/{job_id}.html. A job that exists but has
// not finished yet gets a self-refreshing status page instead of a 404.
func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "job_id")
	html, err := h.engine.HTMLReport(r.Context(), id)
	if errors.Is(err, repository.ErrReportNotFound) {
		if page, ok := h.statusPage(r, id); ok {
			h.respondHTML(w, page)
			return
		}
		h.error(w, http.StatusNotFound, fmt.Sprintf("HTML report not found for job '%s'. The report may not have been generated.", id))
		return
	}
	if err != nil {
		h.serviceError(w, err)
		return
	}
	h.respondHTML(w, html)
}

func (h *Handler) statusPage(r *http.Request, id string) (string, bool) {
	job, err := h.engine.GetJob(r.Context(), id)
	if err != nil || (job.Status != models.StatusPending && job.Status != models.StatusRunning) {
		return "", false
	}
	page, err := report.StatusPage(job)
	if err != nil {
		h.log.WithField("job_id", id).Errorf("failed to render status page: %v", err)
		return "", false
	}
	return page, true
}

// health handles GET /health
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// serviceError maps engine errors to HTTP statuses: validation failures are
// the caller's fault, a missing job is 404, everything else is a 500.
func (h *Handler) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		h.error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrJobNotFound):
		h.error(w, http.StatusNotFound, "job not found")
	default:
		h.log.Errorf("request failed: %v", err)
		h.error(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Errorf("failed to encode response: %v", err)
	}
}

func (h *Handler) respondHTML(w http.ResponseWriter, html string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(html)); err != nil {
		h.log.Errorf("failed to write response: %v", err)
	}
}

func (h *Handler) error(w http.ResponseWriter, status int, msg string) {
	h.respond(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return n, nil
}

// requestLogger logs one line per request with method, path, status, and
// duration.
func requestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method": r.Method,
				"path":   r.URL.Path,
				"status": ww.Status(),
				"took":   time.Since(start).Round(time.Millisecond).String(),
			}).Info("request handled")
		})
	}
}
