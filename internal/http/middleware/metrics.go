package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/finsight/riskdash-back/internal/metrics"
)

// Instrument records request counts and latency per chi route pattern.
// The pattern is resolved after the handler runs so path params collapse
// into their placeholders instead of exploding label cardinality.
func Instrument(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
			m.HTTPDurationSeconds.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}
