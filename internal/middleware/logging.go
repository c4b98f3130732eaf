package middleware

import (
	"context"

	"github.com/dicomgateway/gatewayd/internal/envelope"
	"github.com/dicomgateway/gatewayd/internal/errortaxonomy"
)

// loggingMiddleware is purely advisory: it records the outcome of each
// direction but never turns Continue into Failed, and it never
// short-circuits.
type loggingMiddleware struct {
	name string
	log  LoggerFunc
}

func (m *loggingMiddleware) Name() string { return m.name }

func (m *loggingMiddleware) HandleIncoming(_ context.Context, env *envelope.Envelope) (envelope.Outcome, *errortaxonomy.Error) {
	m.record(env, envelope.Continue)
	return envelope.Continue, nil
}

func (m *loggingMiddleware) HandleOutgoing(_ context.Context, env *envelope.Envelope) (envelope.Outcome, *errortaxonomy.Error) {
	m.record(env, envelope.Continue)
	return envelope.Continue, nil
}

func (m *loggingMiddleware) record(env *envelope.Envelope, outcome envelope.Outcome) {
	if m.log == nil {
		return
	}
	req := env.RequestDetails()
	m.log(outcome, req.Method, req.URI)
}

var _ envelope.Middleware = (*loggingMiddleware)(nil)
