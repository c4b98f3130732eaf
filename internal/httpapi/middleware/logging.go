package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/dicomgateway/gatewayd/internal/shared/redact"
)

var headerRedactor = redact.NewPIIRedactor(redact.RedactorConfig{EmailMode: redact.EmailModeFull})

// Logging middleware logs HTTP requests with structured fields.
// Logs: method, path, status, latency, request_id, trace_id. Request headers
// are logged separately at Debug level with Authorization/API-key/token
// values redacted, since DICOMweb and FHIR callers routinely carry bearer
// tokens and modality credentials in headers.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			latency := time.Since(start)

			traceID := ""
			spanCtx := trace.SpanContextFromContext(r.Context())
			if spanCtx.HasTraceID() {
				traceID = spanCtx.TraceID().String()
			}
			requestID := GetRequestID(r.Context())

			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.statusCode),
				slog.Duration("latency", latency),
				slog.String("request_id", requestID),
				slog.String("trace_id", traceID),
			)

			if logger.Enabled(r.Context(), slog.LevelDebug) {
				logger.Debug("request headers",
					slog.Any("headers", headerRedactor.RedactMap(headerMap(r.Header))),
					slog.String("request_id", requestID),
				)
			}
		})
	}
}

// headerMap flattens an http.Header into a map[string]any suitable for
// PIIRedactor, joining repeated header values with a comma.
func headerMap(h http.Header) map[string]any {
	out := make(map[string]any, len(h))
	for k, v := range h {
		if len(v) == 1 {
			out[k] = v[0]
			continue
		}
		out[k] = v
	}
	return out
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code and delegates to the wrapped writer.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
