package backends

import (
	"fmt"
	"log/slog"

	"github.com/dicomgateway/gatewayd/internal/envelope"
)

// Registry resolves a pipeline's configured backend names into the
// envelope.Backend instances a Pipeline dispatches against. It mirrors the
// dicomnet reference's services.Registry command-field dispatcher, keyed by
// name instead of DIMSE command field since one gateway pipeline can name
// several backend drivers of different kinds (dimse, fhir, jmix, echo).
type Registry struct {
	backends map[string]envelope.Backend
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry. A nil logger falls back to
// slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{backends: make(map[string]envelope.Backend), logger: logger}
}

// Register adds or replaces the backend under name.
func (r *Registry) Register(name string, b envelope.Backend) {
	r.backends[name] = b
	r.logger.Debug("backend registered", "name", name)
}

// Get returns the backend registered under name, if any.
func (r *Registry) Get(name string) (envelope.Backend, bool) {
	b, ok := r.backends[name]
	return b, ok
}

// Resolve looks up every name in names, in order, returning an error naming
// the first unregistered one. A pipeline's backend list resolves through
// this exactly once, at startup, so an unknown name fails fast rather than
// surfacing as a runtime Skipped-everything 404.
func (r *Registry) Resolve(names []string) ([]envelope.Backend, error) {
	resolved := make([]envelope.Backend, 0, len(names))
	for _, name := range names {
		b, ok := r.backends[name]
		if !ok {
			return nil, fmt.Errorf("backend %q is not registered", name)
		}
		resolved = append(resolved, b)
	}
	return resolved, nil
}
