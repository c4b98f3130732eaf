package envelope

import (
	"context"
	"net/http"
	"testing"

	"github.com/dicomgateway/gatewayd/internal/errortaxonomy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMiddleware struct {
	name           string
	incomingOutcome Outcome
	outgoingCalls  *[]string
}

func (m *recordingMiddleware) Name() string { return m.name }

func (m *recordingMiddleware) HandleIncoming(_ context.Context, env *Envelope) (Outcome, *errortaxonomy.Error) {
	if m.incomingOutcome == ShortCircuited {
		env.SetShortCircuit(&Response{Status: http.StatusOK, Body: []byte(m.name)})
	}
	return m.incomingOutcome, nil
}

func (m *recordingMiddleware) HandleOutgoing(_ context.Context, _ *Envelope) (Outcome, *errortaxonomy.Error) {
	*m.outgoingCalls = append(*m.outgoingCalls, m.name)
	return Continue, nil
}

type stubBackend struct {
	name    string
	outcome Outcome
	err     *errortaxonomy.Error
}

func (b *stubBackend) Name() string { return b.name }

func (b *stubBackend) Dispatch(_ context.Context, env *Envelope) (Outcome, *errortaxonomy.Error) {
	if b.outcome == Continue {
		env.SetShortCircuit(&Response{Status: http.StatusOK, Body: []byte(b.name)})
	}
	return b.outcome, b.err
}

func newTestEnvelope() *Envelope {
	return New(Details{Method: "GET", URI: "/studies"}, Payload{Protocol: ProtocolHTTP})
}

func TestPipeline_RunsMiddlewareThenBackend(t *testing.T) {
	var outgoing []string
	p := &Pipeline{
		Name: "test",
		Middleware: []Middleware{
			&recordingMiddleware{name: "m1", incomingOutcome: Continue, outgoingCalls: &outgoing},
			&recordingMiddleware{name: "m2", incomingOutcome: Continue, outgoingCalls: &outgoing},
		},
		Backends: []Backend{
			&stubBackend{name: "b1", outcome: Continue},
		},
	}

	resp, ferr := p.Execute(context.Background(), newTestEnvelope())

	require.Nil(t, ferr)
	require.NotNil(t, resp)
	assert.Equal(t, "b1", string(resp.Body))
	assert.Equal(t, []string{"m2", "m1"}, outgoing, "outgoing middleware run in reverse order")
}

func TestPipeline_ShortCircuitSkipsRemainingIncomingButRunsOutgoing(t *testing.T) {
	var outgoing []string
	p := &Pipeline{
		Middleware: []Middleware{
			&recordingMiddleware{name: "m1", incomingOutcome: ShortCircuited, outgoingCalls: &outgoing},
			&recordingMiddleware{name: "m2", incomingOutcome: Continue, outgoingCalls: &outgoing},
		},
		Backends: []Backend{
			&stubBackend{name: "b1", outcome: Continue},
		},
	}

	resp, ferr := p.Execute(context.Background(), newTestEnvelope())

	require.Nil(t, ferr)
	require.NotNil(t, resp)
	assert.Equal(t, "m1", string(resp.Body))
	assert.Equal(t, []string{"m1"}, outgoing, "only middleware already applied on the way in run on the way out")
}

func TestPipeline_BackendSkipFallsThroughToNextBackend(t *testing.T) {
	p := &Pipeline{
		Backends: []Backend{
			&stubBackend{name: "jmix", outcome: Skipped},
			&stubBackend{name: "dimse", outcome: Continue},
		},
	}

	resp, ferr := p.Execute(context.Background(), newTestEnvelope())

	require.Nil(t, ferr)
	require.NotNil(t, resp)
	assert.Equal(t, "dimse", string(resp.Body))
}

func TestPipeline_AllBackendsSkipSynthesizesNotFound(t *testing.T) {
	p := &Pipeline{
		Backends: []Backend{
			&stubBackend{name: "jmix", outcome: Skipped},
		},
	}

	resp, ferr := p.Execute(context.Background(), newTestEnvelope())

	assert.Nil(t, resp)
	require.NotNil(t, ferr)
	assert.Equal(t, errortaxonomy.NotFound, ferr.Kind)
}

func TestPipeline_MiddlewareFailureStopsPipeline(t *testing.T) {
	var outgoing []string
	p := &Pipeline{
		Middleware: []Middleware{
			&failingMiddleware{name: "auth", outgoingCalls: &outgoing},
		},
		Backends: []Backend{
			&stubBackend{name: "b1", outcome: Continue},
		},
	}

	resp, ferr := p.Execute(context.Background(), newTestEnvelope())

	assert.Nil(t, resp)
	require.NotNil(t, ferr)
	assert.Equal(t, errortaxonomy.AuthFailure, ferr.Kind)
}

type failingMiddleware struct {
	name          string
	outgoingCalls *[]string
}

func (m *failingMiddleware) Name() string { return m.name }

func (m *failingMiddleware) HandleIncoming(_ context.Context, _ *Envelope) (Outcome, *errortaxonomy.Error) {
	return Failed, errortaxonomy.New(errortaxonomy.AuthFailure, "missing credentials")
}

func (m *failingMiddleware) HandleOutgoing(_ context.Context, _ *Envelope) (Outcome, *errortaxonomy.Error) {
	*m.outgoingCalls = append(*m.outgoingCalls, m.name)
	return Continue, nil
}
