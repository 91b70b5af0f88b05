package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	ownerNone int32 = iota
	ownerHandler
	ownerTimeout
)

// Timeout caps how long a client waits for one request. The handler runs
// with a context that expires at the limit; the search path passes it only
// to cache round trips, so index scoring itself runs to completion. The
// response is claimed by whichever side writes first; a late handler write
// after the timeout reply is discarded instead of corrupting the stream.
func Timeout(limit time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), limit)
			defer cancel()

			cw := &claimedWriter{inner: w}
			finished := make(chan struct{})
			go func() {
				defer close(finished)
				next.ServeHTTP(cw, r.WithContext(ctx))
			}()

			select {
			case <-finished:
				return
			case <-ctx.Done():
			}

			if !cw.claim(ownerTimeout) {
				// The handler already started writing; let it finish.
				<-finished
				return
			}
			slog.Warn("request timed out",
				"method", r.Method,
				"path", r.URL.Path,
				"limit", limit,
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusGatewayTimeout)
			w.Write([]byte(`{"ok":false,"error":"request_timeout"}`))
		})
	}
}

// claimedWriter hands the response to the first writer. The wrapped handler
// writes through ownerHandler; once the timeout path claims the response,
// handler writes become no-ops.
type claimedWriter struct {
	inner http.ResponseWriter
	owner atomic.Int32
}

func (cw *claimedWriter) claim(who int32) bool {
	return cw.owner.CompareAndSwap(ownerNone, who) || cw.owner.Load() == who
}

func (cw *claimedWriter) Header() http.Header {
	return cw.inner.Header()
}

func (cw *claimedWriter) WriteHeader(code int) {
	if cw.claim(ownerHandler) {
		cw.inner.WriteHeader(code)
	}
}

func (cw *claimedWriter) Write(b []byte) (int, error) {
	if cw.claim(ownerHandler) {
		return cw.inner.Write(b)
	}
	return len(b), nil
}
