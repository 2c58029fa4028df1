package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/kofabeauty/storefront-backend/pkg/logger"
)

// Logging writes one line per finished request. Probe traffic under /health
// is only logged when it fails.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := logg.WithFields(r.Context(), map[string]any{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status < http.StatusBadRequest && strings.HasPrefix(r.URL.Path, "/health") {
				return
			}
			logRequest(logg, logg.WithFields(ctx, map[string]any{
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			}), status)
		})
	}
}

func logRequest(logg *logger.Logger, ctx context.Context, status int) {
	switch {
	case status >= http.StatusInternalServerError:
		logg.Warn(ctx, "request.failed")
	default:
		logg.Info(ctx, "request.complete")
	}
}
