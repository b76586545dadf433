package server

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/teemow/dayboard/internal/instrumentation"
	"github.com/teemow/dayboard/internal/logging"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument wraps each request in a server span and records request count
// and latency per route pattern.
func instrument(metrics *instrumentation.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		ctx, span := instrumentation.StartSpan(r.Context(), "http.request",
			attribute.String("http.request.method", r.Method))
		defer span.End()
		r = r.WithContext(ctx)

		next.ServeHTTP(rec, r)

		// ServeMux sets Pattern on the request it routes.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		span.SetName(route)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", rec.status),
		)
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rec.status))
		}
		metrics.RecordHTTPRequest(ctx, r.Method, route, rec.status, time.Since(start))
	})
}

// requireSession resolves the session token to a user id before calling next.
// Requests without a valid session are answered with 401.
func requireSession(sessions *Sessions, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := sessions.Verify(sessionToken(r))
		if err != nil {
			logger.DebugContext(r.Context(), "session rejected", logging.Err(err))
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Success: false, Error: messageUnauthorized})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}
