package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/searchstack/textsearchd/internal/analytics"
	"github.com/searchstack/textsearchd/internal/builder"
	"github.com/searchstack/textsearchd/internal/index"
	"github.com/searchstack/textsearchd/internal/search"
	apperrors "github.com/searchstack/textsearchd/pkg/errors"
	"github.com/searchstack/textsearchd/pkg/metrics"
	"github.com/searchstack/textsearchd/pkg/resilience"
	"github.com/searchstack/textsearchd/pkg/tracing"
)

// LastBuild records the outcome of the most recent build pass.
type LastBuild struct {
	Mode    string              `json:"mode"`
	Dataset string              `json:"dataset"`
	Threads int                 `json:"threads"`
	Result  builder.BuildResult `json:"result"`
	Err     string              `json:"error,omitempty"`
}

// JobManager serialises index builds: at most one build pass runs at any
// time, enforced by a compare-and-swap on the running flag. Completion hooks
// update gauges, flush the query cache, and record audit history.
type JobManager struct {
	builder   *builder.Builder
	ix        *index.Index
	metrics   *metrics.Metrics
	cache     *search.QueryCache
	collector *analytics.Collector
	history   *BuildHistory
	logger    *slog.Logger

	running atomic.Bool

	mu      sync.Mutex
	dataset string
	threads int
	last    *LastBuild
}

// NewJobManager creates a JobManager with the given build defaults. The
// metrics, cache, collector, and history fields are optional.
func NewJobManager(b *builder.Builder, ix *index.Index, dataset string, threads int) *JobManager {
	if threads < 1 {
		threads = 1
	}
	return &JobManager{
		builder: b,
		ix:      ix,
		dataset: dataset,
		threads: threads,
		logger:  slog.Default().With("component", "jobs"),
	}
}

// WithMetrics attaches Prometheus collectors.
func (j *JobManager) WithMetrics(m *metrics.Metrics) *JobManager {
	j.metrics = m
	return j
}

// WithCache attaches the query cache flushed after each build.
func (j *JobManager) WithCache(c *search.QueryCache) *JobManager {
	j.cache = c
	return j
}

// WithCollector attaches an analytics collector.
func (j *JobManager) WithCollector(c *analytics.Collector) *JobManager {
	j.collector = c
	return j
}

// WithHistory attaches the build-history audit store.
func (j *JobManager) WithHistory(h *BuildHistory) *JobManager {
	j.history = h
	return j
}

// Running reports whether a build pass is in flight.
func (j *JobManager) Running() bool {
	return j.running.Load()
}

// Defaults returns the current default dataset path and thread count.
func (j *JobManager) Defaults() (dataset string, threads int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dataset, j.threads
}

// Last returns a copy of the most recent build record, or nil before any
// build has completed.
func (j *JobManager) Last() *LastBuild {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.last == nil {
		return nil
	}
	cp := *j.last
	return &cp
}

// Start launches a build pass in the background. Returns ErrBuildRunning if
// one is already in flight. Empty dataset or non-positive threads fall back
// to the manager's defaults.
func (j *JobManager) Start(dataset string, threads int, incremental bool) error {
	j.mu.Lock()
	if dataset == "" {
		dataset = j.dataset
	}
	if threads < 1 {
		threads = j.threads
	}
	j.mu.Unlock()

	if dataset == "" {
		return apperrors.New(apperrors.ErrInvalidInput, 400, "dataset path is required")
	}

	if !j.running.CompareAndSwap(false, true) {
		return apperrors.ErrBuildRunning
	}

	j.mu.Lock()
	j.dataset = dataset
	j.threads = threads
	j.mu.Unlock()

	go j.run(dataset, threads, incremental)
	return nil
}

func (j *JobManager) run(dataset string, threads int, incremental bool) {
	defer j.running.Store(false)

	mode := "full"
	if incremental {
		mode = "incremental"
	}
	j.logger.Info("build started", "mode", mode, "dataset", dataset, "threads", threads)

	var (
		res builder.BuildResult
		err error
	)
	start := time.Now()
	ctx, span := tracing.Begin(context.Background(), "build", fmt.Sprintf("build-%d", start.UnixNano()))
	span.Set("mode", mode)
	span.Set("dataset", dataset)
	span.Set("workers", threads)

	_, pass := tracing.Child(ctx, "index_pass")
	if incremental {
		res, err = j.builder.UpdateFromDirectory(dataset, threads)
	} else {
		res, err = j.builder.BuildFromDirectory(dataset, threads)
	}
	pass.Finish()

	rec := &LastBuild{Mode: mode, Dataset: dataset, Threads: threads, Result: res}
	status := "ok"
	if err != nil {
		rec.Err = err.Error()
		status = "error"
		j.logger.Error("build failed", "mode", mode, "dataset", dataset, "error", err)
	}

	j.mu.Lock()
	j.last = rec
	j.mu.Unlock()

	j.finish(rec, status, time.Since(start))

	span.Set("indexed", res.Indexed)
	span.Set("errors", res.Errors)
	span.Set("status", status)
	span.Finish()
	span.Emit()
}

func (j *JobManager) finish(rec *LastBuild, status string, took time.Duration) {
	if j.metrics != nil {
		j.metrics.BuildsTotal.WithLabelValues(rec.Mode, status).Inc()
		j.metrics.BuildDuration.WithLabelValues(rec.Mode).Observe(took.Seconds())
		j.metrics.DocsIndexedTotal.Add(float64(rec.Result.Indexed))
		st := j.ix.Stats()
		j.metrics.IndexDocuments.Set(float64(st.Documents))
		j.metrics.IndexTerms.Set(float64(st.Terms))
		j.metrics.IndexPostings.Set(float64(st.Postings))
	}

	if j.cache != nil && rec.Result.Indexed > 0 {
		err := resilience.RunWithDeadline(context.Background(), 10*time.Second, "cache invalidation", func(ctx context.Context) error {
			return j.cache.Invalidate(ctx)
		})
		if err != nil {
			j.logger.Error("cache invalidation after build failed", "error", err)
		}
	}

	event := analytics.NewBuildEvent(
		rec.Mode, rec.Dataset, rec.Threads,
		rec.Result.Scanned, rec.Result.Indexed, rec.Result.Skipped,
		rec.Result.Errors, rec.Result.ElapsedMS, status,
	)
	j.collector.Track(event)

	if j.history != nil {
		err := resilience.RunWithDeadline(context.Background(), 10*time.Second, "build history insert", func(ctx context.Context) error {
			return j.history.Record(ctx, event)
		})
		if err != nil {
			j.logger.Error("recording build history failed", "error", err)
		}
	}
}
