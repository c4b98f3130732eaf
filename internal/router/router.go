// Package router is the gateway's network binder: it resolves one
// configured network's pipelines into a chi.Mux for its HTTP endpoints and
// starts the DIMSE Storage SCP listeners its DIMSE endpoints need. Config
// validation (referenced-name existence, AE title and port ranges) happens
// once at load time via internal/config.Config.Validate; this package
// assumes a config that has already passed it.
package router

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dicomgateway/gatewayd/internal/backends"
	"github.com/dicomgateway/gatewayd/internal/config"
	"github.com/dicomgateway/gatewayd/internal/dimse/scp"
	"github.com/dicomgateway/gatewayd/internal/envelope"
	"github.com/dicomgateway/gatewayd/internal/errortaxonomy"
	httpmw "github.com/dicomgateway/gatewayd/internal/httpapi/middleware"
	"github.com/dicomgateway/gatewayd/internal/httpapi/response"
	"github.com/dicomgateway/gatewayd/internal/resilience"
	"github.com/dicomgateway/gatewayd/internal/shared/metrics"
	"github.com/dicomgateway/gatewayd/internal/storage"
)

// Deps are the already-constructed collaborators a network's pipelines
// dispatch through. Middleware and Backends are resolved once at startup
// (main.go) from the config's middleware/middleware_types and backends
// tables; the router only binds them to endpoints.
type Deps struct {
	Backends    *backends.Registry
	Middleware  map[string]envelope.Middleware
	Storage     storage.Backend
	SCPRegistry *scp.Registry
	Logger      *slog.Logger

	// Metrics records per-request counts/durations for every HTTP
	// endpoint this network serves. Defaults to metrics.Noop() if nil.
	Metrics metrics.HTTPMetrics
	// PromRegistry, if set, is scraped at GET /metrics on every HTTP
	// network this router builds.
	PromRegistry *prometheus.Registry
	// Shutdown tracks in-flight HTTP requests so draining can wait for
	// them and new requests can be rejected once shutdown begins. Nil
	// means no coordinated drain (requests are always accepted).
	Shutdown resilience.ShutdownCoordinator
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d Deps) metrics() metrics.HTTPMetrics {
	if d.Metrics == nil {
		return metrics.Noop()
	}
	return d.Metrics
}

// BuildNetwork builds the HTTP mux for networkName's pipelines and, as a
// side effect, ensures every DIMSE SCP endpoint those pipelines bind on
// this network is listening (EnsureStarted is idempotent, so calling
// BuildNetwork again for the same network is safe).
func BuildNetwork(ctx context.Context, cfg *config.Config, networkName string, deps Deps) (http.Handler, error) {
	mux := chi.NewRouter()
	mux.Use(
		httpmw.RequestID,
		httpmw.Otel(networkName),
		httpmw.ErrorHandler,
		httpmw.SecurityHeaders,
		httpmw.Logging(deps.logger()),
		httpmw.Metrics(deps.metrics()),
	)

	if deps.PromRegistry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(deps.PromRegistry, promhttp.HandlerOpts{}))
	}

	for pipelineName, pcfg := range cfg.Pipelines {
		if !containsString(pcfg.Networks, networkName) {
			continue
		}

		pipeline, err := buildPipeline(pipelineName, pcfg, deps)
		if err != nil {
			return nil, err
		}

		for _, epName := range pcfg.Endpoints {
			ep, ok := cfg.Endpoints[epName]
			if !ok {
				return nil, fmt.Errorf("pipeline %q: endpoint %q is not configured", pipelineName, epName)
			}

			switch ep.Kind {
			case config.EndpointHTTP:
				mux.Mount(ep.PathPrefix, httpHandler(pipeline, deps.logger(), deps.Shutdown))
			case config.EndpointDimseSCP:
				if err := ensureDimseSCPStarted(ctx, cfg, epName, ep, pipeline, deps); err != nil {
					return nil, fmt.Errorf("pipeline %q: endpoint %q: %w", pipelineName, epName, err)
				}
			default:
				return nil, fmt.Errorf("pipeline %q: endpoint %q: unknown kind %q", pipelineName, epName, ep.Kind)
			}
		}
	}

	return mux, nil
}

func buildPipeline(name string, pcfg config.PipelineConfig, deps Deps) (*envelope.Pipeline, error) {
	mws := make([]envelope.Middleware, 0, len(pcfg.Middleware))
	for _, n := range pcfg.Middleware {
		mw, ok := deps.Middleware[n]
		if !ok {
			return nil, fmt.Errorf("pipeline %q: middleware %q is not built", name, n)
		}
		mws = append(mws, mw)
	}

	bes, err := deps.Backends.Resolve(pcfg.Backends)
	if err != nil {
		return nil, fmt.Errorf("pipeline %q: %w", name, err)
	}

	return &envelope.Pipeline{Name: name, Middleware: mws, Backends: bes}, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// httpHandler adapts one Pipeline to net/http: it builds an Envelope from
// the inbound request, runs the pipeline, and renders the short-circuited
// Response (or the mapped error) back onto the ResponseWriter. If shutdown
// is non-nil and shutdown has been initiated, the request is rejected with
// 503 before the pipeline runs, and otherwise counted so the drain can wait
// for it in shutdown.WaitForDrain.
func httpHandler(pipeline *envelope.Pipeline, logger *slog.Logger, shutdown resilience.ShutdownCoordinator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shutdown != nil {
			if !shutdown.IncrementActive() {
				http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
				return
			}
			defer shutdown.DecrementActive()
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			response.WriteError(w, r, errortaxonomy.Wrap(errortaxonomy.Network, "failed to read request body", err))
			return
		}

		query := make(map[string][]string, len(r.URL.Query()))
		for k, v := range r.URL.Query() {
			query[k] = v
		}

		env := envelope.New(envelope.Details{
			Method:  r.Method,
			URI:     r.URL.Path,
			Headers: r.Header,
			Query:   query,
		}, envelope.Payload{Protocol: envelope.ProtocolHTTP, Bytes: body})

		resp, ferr := pipeline.Execute(r.Context(), env)
		if ferr != nil {
			logger.Warn("pipeline failed", "pipeline", pipeline.Name, "error", ferr)
			response.WriteError(w, r, ferr)
			return
		}

		for key, values := range resp.Headers {
			for _, v := range values {
				w.Header().Add(key, v)
			}
		}
		if resp.ContentType != "" {
			w.Header().Set("Content-Type", resp.ContentType)
		}
		status := resp.Status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = w.Write(resp.Body)
	})
}
