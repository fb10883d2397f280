// Package api assembles the external HTTP surface. All domain routes hang
// off /v1; a metrics middleware observes every handler.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"capsuled/pkg/api/handlers"
	"capsuled/pkg/telemetry"
)

// Handler returns the /v1 router with every resource registered.
func Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	v1 := r.PathPrefix("/v1").Subrouter()
	handlers.RegisterCapsules(v1)
	handlers.RegisterMemories(v1)
	handlers.RegisterGalleries(v1)
	handlers.RegisterAccess(v1)
	handlers.RegisterSharing(v1)
	handlers.RegisterSigning(v1)

	admin := v1.PathPrefix("/admin").Subrouter()
	handlers.RegisterAdmin(admin)

	return r
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		telemetry.RequestDuration.WithLabelValues(route, strconv.Itoa(sr.status)).Observe(time.Since(start).Seconds())
	})
}
