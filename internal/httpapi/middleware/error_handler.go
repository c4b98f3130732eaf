// Package middleware contains HTTP middleware for the gateway's DICOMweb/
// JMIX/FHIR ingress.
package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/dicomgateway/gatewayd/internal/ctxutil"
	"github.com/dicomgateway/gatewayd/internal/httpapi/response"
)

// ErrorHandler recovers from panics in downstream handlers, logs the panic
// with request-id correlation, and writes a 500 problem+json response.
//
// RequestID middleware must run before this one so the request id is
// available for log correlation.
func ErrorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic recovered",
					"request_id", ctxutil.RequestIDFromContext(r.Context()),
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				response.WritePanicRecovered(w, r)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
