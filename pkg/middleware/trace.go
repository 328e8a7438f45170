package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/tracing"
)

// Trace opens a root span per request, keyed by the request id when
// RequestID runs first, and logs the finished span tree. Handlers add
// child spans through the request context.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartSpan(r.Context(), r.Method+" "+normalizePath(r.URL.Path), GetRequestID(r))
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))
		span.SetAttr("status", sw.status)
		span.End()

		level := slog.LevelDebug
		if sw.status >= 500 {
			level = slog.LevelWarn
		}
		span.Log(ctx, level, -1)
	})
}
