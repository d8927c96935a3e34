package api

import (
	"fmt"
	"monallopay/internal/metrics"
	"monallopay/internal/validation"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// requestLogger logs every request and records its metrics.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)

		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		h.Logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("route", route).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", elapsed).
			Str("requestId", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// rateLimit rejects requests above the configured rate. Probes and metrics
// are never limited.
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz", "/readyz", "/metrics":
			next.ServeHTTP(w, r)
			return
		}
		if h.Limiter != nil && !h.Limiter.Allow() {
			h.writeError(w, r, http.StatusTooManyRequests, "TooManyRequests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func validationErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", validation.ErrInvalid, fmt.Sprintf(format, args...))
}
