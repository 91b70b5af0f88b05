// Package health answers the service's liveness and readiness probes. The
// index probe is required: if it fails the service reports down. Redis and
// Postgres are optional sidecars, so their probes only degrade the report;
// searches still work without them.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Probe checks one dependency. A nil return means healthy.
type Probe func(ctx context.Context) error

type probe struct {
	name     string
	fn       Probe
	required bool
}

// Component is the result of one probe.
type Component struct {
	OK        bool   `json:"ok"`
	Required  bool   `json:"required"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Report aggregates all probes. Status is "up" when everything passed,
// "degraded" when only optional probes failed, "down" when a required one
// did.
type Report struct {
	Status     string               `json:"status"`
	Components map[string]Component `json:"components"`
	CheckedAt  time.Time            `json:"checked_at"`
}

// Checker runs registered probes concurrently.
type Checker struct {
	mu     sync.RWMutex
	probes []probe
}

// NewChecker creates an empty Checker.
func NewChecker() *Checker {
	return &Checker{}
}

// Register adds a required probe; its failure makes the service not ready.
func (c *Checker) Register(name string, fn Probe) {
	c.add(name, fn, true)
}

// RegisterOptional adds a probe whose failure only degrades the report.
func (c *Checker) RegisterOptional(name string, fn Probe) {
	c.add(name, fn, false)
}

func (c *Checker) add(name string, fn Probe, required bool) {
	c.mu.Lock()
	c.probes = append(c.probes, probe{name: name, fn: fn, required: required})
	c.mu.Unlock()
}

// Run executes all probes concurrently and aggregates their results.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	probes := make([]probe, len(c.probes))
	copy(probes, c.probes)
	c.mu.RUnlock()

	report := Report{
		Status:     "up",
		Components: make(map[string]Component, len(probes)),
		CheckedAt:  time.Now().UTC(),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, p := range probes {
		wg.Add(1)
		go func(p probe) {
			defer wg.Done()
			start := time.Now()
			err := p.fn(ctx)
			comp := Component{
				OK:        err == nil,
				Required:  p.required,
				LatencyMS: time.Since(start).Milliseconds(),
			}
			if err != nil {
				comp.Error = err.Error()
			}
			mu.Lock()
			report.Components[p.name] = comp
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	for _, comp := range report.Components {
		if comp.OK {
			continue
		}
		if comp.Required {
			report.Status = "down"
			break
		}
		report.Status = "degraded"
	}
	return report
}

// LiveHandler answers liveness probes. The process responding is the whole
// check; no dependencies are consulted.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	}
}

// ReadyHandler answers readiness probes with the full report. Only a "down"
// report returns 503; a degraded service keeps serving searches.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report := c.Run(ctx)
		w.Header().Set("Content-Type", "application/json")
		if report.Status == "down" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(report)
	}
}
