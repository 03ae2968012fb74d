// unison-payments/internal/api/router.go
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/example/unison-payments/internal/auth"
	m "github.com/example/unison-payments/pkg/metrics"
)

const serviceName = "payments-api"

// NewRouter wires every HTTP route. Webhooks and probes are public; the rest
// sit behind the baton verifier.
func NewRouter(d Deps, verifier *auth.Verifier) http.Handler {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/payments/webhooks/{provider}", WebhookHandler(d)).Methods(http.MethodPost)

	authed := r.PathPrefix("/payments").Subrouter()
	authed.Use(verifier.Middleware(func(w http.ResponseWriter, err error) {
		writeError(w, d.logger(), err)
	}))
	authed.HandleFunc("/instruments", RegisterInstrumentHandler(d)).Methods(http.MethodPost)
	authed.HandleFunc("/instruments/{instrument_id}", GetInstrumentHandler(d)).Methods(http.MethodGet)
	authed.HandleFunc("/transactions", CreateTransactionHandler(d)).Methods(http.MethodPost)
	authed.HandleFunc("/transactions/{txn_id}", GetTransactionHandler(d)).Methods(http.MethodGet)

	return cors.AllowAll().Handler(r)
}

/*************** Metrics middleware ***************/
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		statusLabel := m.StatusLabel(rec.status)
		m.IncRequest(serviceName, statusLabel, r.Method)
		m.ObserveDuration(serviceName, statusLabel, time.Since(start).Seconds())
	})
}
