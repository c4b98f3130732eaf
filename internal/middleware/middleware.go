// Package middleware resolves one configured middleware_type Kind into a
// concrete envelope.Middleware, per the pipeline's middleware list.
// Pipelines reference middleware by name; a name resolves to a
// MiddlewareConfig, whose Type names a MiddlewareTypeConfig, whose Kind
// selects the constructor below.
package middleware

import (
	"fmt"
	"time"

	"github.com/dicomgateway/gatewayd/internal/bridge"
	"github.com/dicomgateway/gatewayd/internal/config"
	"github.com/dicomgateway/gatewayd/internal/envelope"
	httpmw "github.com/dicomgateway/gatewayd/internal/httpapi/middleware"
)

// Kind is the set of middleware kinds a middleware_type entry may declare.
type Kind string

const (
	// KindBridge is the DICOMweb-to-DIMSE translation middleware.
	KindBridge Kind = "bridge"
	// KindAuth authenticates the request and records the resulting
	// subject on target_details metadata.
	KindAuth Kind = "auth"
	// KindRateLimit enforces a per-key request rate, failing the pipeline
	// with OperationFailed (502) when the limit is exceeded and
	// fail_on_error is set; otherwise the request continues.
	KindRateLimit Kind = "rate_limit"
	// KindLogging is purely advisory: it records the request outcome
	// and never turns Continue into Failed.
	KindLogging Kind = "logging"
)

// Dependencies are the process-wide collaborators a middleware instance may
// need. Not every Kind uses every field; Build only reads what its Kind
// requires.
type Dependencies struct {
	Authenticator httpmw.Authenticator
	RateLimiter   httpmw.RateLimiter
	Logger        LoggerFunc
}

// LoggerFunc receives one structured log line per request. It is typed as a
// func rather than *slog.Logger so callers can wire in request-scoped
// fields (endpoint name, pipeline name) the Build call already knows.
type LoggerFunc func(outcome envelope.Outcome, method, uri string)

// Build resolves one named middleware instance into an envelope.Middleware,
// per its middleware_type's Kind. instance.Type names a middleware_types
// entry; kindCfg is that entry.
func Build(name string, instance config.MiddlewareConfig, kindCfg config.MiddlewareTypeConfig, deps Dependencies) (envelope.Middleware, error) {
	switch Kind(kindCfg.Kind) {
	case KindBridge:
		return newBridgeMiddleware(name, instance.Options)
	case KindAuth:
		if deps.Authenticator == nil {
			return nil, fmt.Errorf("middleware %q: kind %q requires an Authenticator", name, kindCfg.Kind)
		}
		return &authMiddleware{name: name, auth: deps.Authenticator, failOnError: kindCfg.FailOnError}, nil
	case KindRateLimit:
		if deps.RateLimiter == nil {
			return nil, fmt.Errorf("middleware %q: kind %q requires a RateLimiter", name, kindCfg.Kind)
		}
		return newRateLimitMiddleware(name, deps.RateLimiter, instance.Options, kindCfg.FailOnError)
	case KindLogging:
		return &loggingMiddleware{name: name, log: deps.Logger}, nil
	default:
		return nil, fmt.Errorf("middleware %q: unknown kind %q", name, kindCfg.Kind)
	}
}

func newBridgeMiddleware(name string, options map[string]any) (envelope.Middleware, error) {
	destinationAET, ok := optString(options, "destination_aet")
	if !ok {
		return nil, fmt.Errorf("middleware %q: bridge requires options.destination_aet", name)
	}
	studyRootSOPClass, _ := optString(options, "study_root_sop_class")
	if studyRootSOPClass == "" {
		studyRootSOPClass = "1.2.840.10008.5.1.4.1.2.2.1"
	}
	storageSOPClass, _ := optString(options, "storage_sop_class")
	if storageSOPClass == "" {
		storageSOPClass = "1.2.840.10008.5.1.4.1.1.7"
	}
	return &bridge.Middleware{
		DestinationAET:    destinationAET,
		StudyRootSOPClass: studyRootSOPClass,
		StorageSOPClass:   storageSOPClass,
	}, nil
}

func optString(options map[string]any, key string) (string, bool) {
	v, ok := options[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func optFloat(options map[string]any, key string, fallback float64) float64 {
	v, ok := options[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return fallback
	}
}
