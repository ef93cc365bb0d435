package nbi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/citypulse/dispatch-twin/internal/logging"
	"github.com/citypulse/dispatch-twin/internal/observability"
)

// statusRecorder captures the response status code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestMiddleware annotates each request with a request_id-scoped logger
// and records Prometheus counts and durations per route template.
func requestMiddleware(log logging.Logger, metrics *observability.EngineCollector) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ctx, reqLog := logging.WithRequestLogger(r.Context(), log)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			elapsed := time.Since(start)
			if metrics != nil {
				metrics.ObserveHTTP(route, r.Method, strconv.Itoa(rec.status), elapsed.Seconds())
			}
			reqLog.Debug(ctx, "request handled",
				logging.String("route", route),
				logging.String("method", r.Method),
				logging.Int("status", rec.status),
				logging.Duration("elapsed", elapsed),
			)
		})
	}
}
