// Package tracing records build passes as timed span trees and emits them
// through slog once the pass completes. The service is a single process, so
// spans never cross a wire; the trace id ties together the log lines of one
// build.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type ctxKey struct{}

// Span is one timed step of a build pass. Attributes keep insertion order
// so repeated builds log their fields in a stable layout.
type Span struct {
	Name    string
	TraceID string
	Started time.Time
	Elapsed time.Duration

	mu       sync.Mutex
	attrs    []any
	children []*Span
}

// Begin starts a root span and stores it in the returned context.
func Begin(ctx context.Context, name, traceID string) (context.Context, *Span) {
	s := &Span{
		Name:    name,
		TraceID: traceID,
		Started: time.Now(),
	}
	return context.WithValue(ctx, ctxKey{}, s), s
}

// Child starts a span nested under the one carried by ctx. Without a parent
// in ctx the child behaves as its own root.
func Child(ctx context.Context, name string) (context.Context, *Span) {
	s := &Span{
		Name:    name,
		Started: time.Now(),
	}
	if parent := FromContext(ctx); parent != nil {
		s.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.children = append(parent.children, s)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, ctxKey{}, s), s
}

// FromContext returns the span carried by ctx, or nil.
func FromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(ctxKey{}).(*Span)
	return s
}

// Set attaches a key-value attribute to the span.
func (s *Span) Set(key string, value any) {
	s.mu.Lock()
	s.attrs = append(s.attrs, key, value)
	s.mu.Unlock()
}

// Finish stamps the span's elapsed time.
func (s *Span) Finish() {
	s.Elapsed = time.Since(s.Started)
}

// Emit logs the span tree, one line per span, with slash-joined paths such
// as build/index_pass so the lines of one trace read as an outline.
func (s *Span) Emit() {
	s.emit("")
}

func (s *Span) emit(prefix string) {
	path := s.Name
	if prefix != "" {
		path = prefix + "/" + s.Name
	}
	args := []any{
		"trace_id", s.TraceID,
		"span", path,
		"elapsed_ms", s.Elapsed.Milliseconds(),
	}
	s.mu.Lock()
	args = append(args, s.attrs...)
	children := s.children
	s.mu.Unlock()

	slog.Info("span", args...)
	for _, c := range children {
		c.emit(path)
	}
}
