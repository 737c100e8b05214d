package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"diskuto/internal/applog"
)

// statusRecorder wraps a ResponseWriter to capture the status code written,
// for access logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withCorrelationID is the outermost middleware: it attaches a fresh
// correlation ID to the request context (or reuses one a client supplied via
// X-Correlation-ID, so proxies can thread a single ID end to end) and
// reflects it back in the response.
func withCorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Correlation-ID")
		if id == "" {
			id = applog.NewCorrelationID()
		}
		ctx := applog.WithCorrelationID(r.Context(), id)
		w.Header().Set("X-Correlation-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withAccessLog logs one line per request and records Prometheus metrics,
// after the handler (and any panic recovery) has decided the final status.
func withAccessLog(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		duration := time.Since(start)
		recordHTTPRequest(r.Method, rec.status, duration)
		log.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", duration.Milliseconds(),
		)
	})
}

// withCORS is permissive for GET/HEAD and also allows writes cross-origin,
// since authorization is via signature rather than cookie.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRecover translates a panic inside a handler (including one propagated
// out of a blocking-pool dispatch) into a 500, logged with the request's
// correlation ID, rather than taking down the listener goroutine.
func withRecover(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.ErrorContext(r.Context(), "panic handling request", "panic", rec, "path", r.URL.Path)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// chain composes the middleware in the order spec'd: correlation-ID
// injection -> access log -> CORS -> panic recovery -> the router itself.
func chain(log *slog.Logger, next http.Handler) http.Handler {
	return withCorrelationID(withAccessLog(log, withCORS(withRecover(log, next))))
}
