package api

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/tfkr-ae/formrelay"
	"github.com/tfkr-ae/formrelay/forward"
)

// ErrUnauthorized is reported when an operator route is called without the API key.
var ErrUnauthorized = errors.New("unauthorized")

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Logger logs every request with its status and duration.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start).Round(time.Millisecond),
				"remote", r.RemoteAddr,
			)
		})
	}
}

// Recovery turns a panicking handler into a 500.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("handler panic", "path", r.URL.Path, "panic", rec, "stack", string(debug.Stack()))
					writeError(w, http.StatusInternalServerError, "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// StampReceivedAt records when the request arrived and the X-Trace-Id header, if any.
func StampReceivedAt(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := formrelay.ContextWithReceivedAt(r.Context(), time.Now().UTC())
		if traceID := r.Header.Get(forward.TraceIDHeader); traceID != "" {
			ctx = formrelay.ContextWithTraceID(ctx, traceID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimit delays requests to the limiter's pace and rejects those that would wait longer than maxWait.
func RateLimit(limiter *rate.Limiter, maxWait time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := limiter.Reserve()
			if !res.OK() || res.Delay() > maxWait {
				delay := res.Delay()
				res.Cancel()
				w.Header().Set("Retry-After", strconv.Itoa(max(1, int(delay.Seconds()+0.5))))
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}

			if delay := res.Delay(); delay > 0 {
				t := time.NewTimer(delay)
				defer t.Stop()
				select {
				case <-t.C:
				case <-r.Context().Done():
					res.Cancel()
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAPIKey rejects requests whose X-API-Key header does not match key.
// An empty key locks the routes.
func RequireAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(forward.APIKeyHeader)
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				writeError(w, http.StatusUnauthorized, ErrUnauthorized.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
