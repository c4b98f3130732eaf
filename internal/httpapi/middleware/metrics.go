package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dicomgateway/gatewayd/internal/shared/metrics"
)

// statusRecorder wraps http.ResponseWriter to capture the status code
// written by the handler, defaulting to 200 if WriteHeader is never called.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Metrics returns middleware that records request count and duration for
// every HTTP request handled by the gateway's DICOMweb/JMIX/FHIR ingress.
func Metrics(m metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			duration := time.Since(start).Seconds()
			m.IncRequest(r.Method, r.URL.Path, strconv.Itoa(rec.status))
			m.ObserveRequestDuration(r.Method, r.URL.Path, duration)
		})
	}
}
