// Package server exposes the HTTP API: status, search, build control,
// scheduler control, cache administration, and health probes.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/searchstack/textsearchd/internal/index"
	"github.com/searchstack/textsearchd/internal/search"
	apperrors "github.com/searchstack/textsearchd/pkg/errors"
	"github.com/searchstack/textsearchd/pkg/health"
	"github.com/searchstack/textsearchd/pkg/logger"
)

// Handler serves the service's HTTP API.
type Handler struct {
	searcher    *search.Service
	jobs        *JobManager
	scheduler   *Scheduler
	ix          *index.Index
	checker     *health.Checker
	defaultTopK int
	maxTopK     int
	logger      *slog.Logger
}

// NewHandler creates a Handler. checker may be nil to disable probe routes.
func NewHandler(searcher *search.Service, jobs *JobManager, scheduler *Scheduler, ix *index.Index, checker *health.Checker, defaultTopK, maxTopK int) *Handler {
	if defaultTopK < 0 {
		defaultTopK = 20
	}
	return &Handler{
		searcher:    searcher,
		jobs:        jobs,
		scheduler:   scheduler,
		ix:          ix,
		checker:     checker,
		defaultTopK: defaultTopK,
		maxTopK:     maxTopK,
		logger:      slog.Default().With("component", "http"),
	}
}

// RegisterRoutes attaches all API routes to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /status", h.Status)
	mux.HandleFunc("GET /search", h.Search)
	mux.HandleFunc("POST /build", h.Build)
	mux.HandleFunc("POST /scheduler", h.SchedulerUpdate)
	mux.HandleFunc("GET /cache/stats", h.CacheStats)
	mux.HandleFunc("POST /cache/invalidate", h.CacheInvalidate)
	if h.checker != nil {
		mux.HandleFunc("GET /health/live", h.checker.LiveHandler())
		mux.HandleFunc("GET /health/ready", h.checker.ReadyHandler())
	}
}

type statusResponse struct {
	OK                 bool        `json:"ok"`
	Building           bool        `json:"building"`
	DatasetPath        string      `json:"dataset_path"`
	BuildThreads       int         `json:"build_threads"`
	SchedulerEnabled   bool        `json:"scheduler_enabled"`
	SchedulerIntervalS int64       `json:"scheduler_interval_s"`
	Index              index.Stats `json:"index"`
	Last               *LastBuild  `json:"last,omitempty"`
}

// Status reports build state, scheduler state, and index cardinalities.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	dataset, threads := h.jobs.Defaults()
	resp := statusResponse{
		OK:                 true,
		Building:           h.jobs.Running(),
		DatasetPath:        dataset,
		BuildThreads:       threads,
		SchedulerEnabled:   h.scheduler.Enabled(),
		SchedulerIntervalS: int64(h.scheduler.Interval() / time.Second),
		Index:              h.ix.Stats(),
		Last:               h.jobs.Last(),
	}
	writeJSON(w, http.StatusOK, resp)
}

type searchResponse struct {
	OK bool `json:"ok"`
	*search.Result
}

// Search executes a query. A missing or empty q yields an empty result set;
// an unparseable topk falls back to the default.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")

	topK := h.defaultTopK
	if raw := r.URL.Query().Get("topk"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			topK = v
		}
	}
	if h.maxTopK > 0 && (topK == 0 || topK > h.maxTopK) {
		topK = h.maxTopK
	}

	result, err := h.searcher.Search(r.Context(), q, topK)
	if err != nil {
		logger.FromContext(r.Context()).Error("search failed", "q", q, "error", err)
		writeError(w, apperrors.New(apperrors.ErrInternal, http.StatusInternalServerError, "search failed"))
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{OK: true, Result: result})
}

type buildRequest struct {
	DatasetPath string `json:"dataset_path"`
	Threads     int    `json:"threads"`
	Incremental bool   `json:"incremental"`
}

type buildResponse struct {
	OK      bool   `json:"ok"`
	Started bool   `json:"started"`
	Mode    string `json:"mode"`
	Dataset string `json:"dataset_path"`
	Threads int    `json:"threads"`
}

// Build starts a background build pass. A pass already in flight is reported
// as already_running with a success status.
func (h *Handler) Build(w http.ResponseWriter, r *http.Request) {
	var req buildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_json")
		return
	}

	if err := h.jobs.Start(req.DatasetPath, req.Threads, req.Incremental); err != nil {
		if errors.Is(err, apperrors.ErrBuildRunning) {
			// A collision is not a failure; the caller simply retries later.
			writeErrorCode(w, http.StatusOK, "already_running")
			return
		}
		if errors.Is(err, apperrors.ErrInvalidInput) {
			writeErrorCode(w, http.StatusBadRequest, "missing_dataset_path")
			return
		}
		writeError(w, err)
		return
	}

	mode := "full"
	if req.Incremental {
		mode = "incremental"
	}
	dataset, threads := h.jobs.Defaults()
	writeJSON(w, http.StatusOK, buildResponse{
		OK:      true,
		Started: true,
		Mode:    mode,
		Dataset: dataset,
		Threads: threads,
	})
}

type schedulerRequest struct {
	Enabled   bool  `json:"enabled"`
	IntervalS int64 `json:"interval_s"`
}

type schedulerResponse struct {
	OK                 bool  `json:"ok"`
	SchedulerEnabled   bool  `json:"scheduler_enabled"`
	SchedulerIntervalS int64 `json:"scheduler_interval_s"`
}

// SchedulerUpdate toggles the periodic incremental rebuild loop.
func (h *Handler) SchedulerUpdate(w http.ResponseWriter, r *http.Request) {
	var req schedulerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "bad_json")
		return
	}
	h.scheduler.Configure(req.Enabled, time.Duration(req.IntervalS)*time.Second)
	writeJSON(w, http.StatusOK, schedulerResponse{
		OK:                 true,
		SchedulerEnabled:   h.scheduler.Enabled(),
		SchedulerIntervalS: int64(h.scheduler.Interval() / time.Second),
	})
}

type cacheStatsResponse struct {
	OK      bool  `json:"ok"`
	Enabled bool  `json:"enabled"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// CacheStats reports query-cache hit and miss counters.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	cache := h.searcher.Cache()
	resp := cacheStatsResponse{OK: true}
	if cache != nil {
		resp.Enabled = true
		resp.Hits, resp.Misses = cache.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

// CacheInvalidate flushes every cached search result.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	cache := h.searcher.Cache()
	if cache == nil {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "enabled": false})
		return
	}
	if err := cache.Invalidate(r.Context()); err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		writeError(w, apperrors.New(apperrors.ErrInternal, http.StatusInternalServerError, "cache invalidation failed"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "enabled": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

func writeErrorCode(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": code})
}
