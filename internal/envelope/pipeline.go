package envelope

import (
	"context"

	"github.com/dicomgateway/gatewayd/internal/errortaxonomy"
)

// Outcome is the result a Middleware or Backend returns from one step.
type Outcome int

const (
	// Continue lets the pipeline proceed to the next middleware/backend.
	Continue Outcome = iota
	// ShortCircuited means a pre-built Response has been attached to the
	// envelope; remaining incoming middleware are skipped, but outgoing
	// middleware still run in reverse order.
	ShortCircuited
	// Failed means the step failed with a typed error; the pipeline
	// stops and maps the error Kind to an HTTP status at the edge.
	Failed
	// Skipped is returned only by backends: this backend does not
	// handle the envelope's target; the pipeline tries the next one.
	Skipped
)

// Middleware is the pipeline's unit of composition. It may read
// RequestDetails, mutate TargetDetails, or short-circuit with a response.
// Purely advisory middleware (logging, metrics) must never turn Continue
// into Failed.
type Middleware interface {
	Name() string
	HandleIncoming(ctx context.Context, env *Envelope) (Outcome, *errortaxonomy.Error)
	HandleOutgoing(ctx context.Context, env *Envelope) (Outcome, *errortaxonomy.Error)
}

// Backend dispatches target_details to an egress destination. A backend
// returns Skipped when the envelope's target doesn't belong to it, letting
// the pipeline try the next configured backend.
type Backend interface {
	Name() string
	Dispatch(ctx context.Context, env *Envelope) (Outcome, *errortaxonomy.Error)
}

// Pipeline is an ordered middleware chain wrapped around a list of backends,
// resolved from one PipelineBinding.
type Pipeline struct {
	Name       string
	Middleware []Middleware
	Backends   []Backend
}

// Execute applies incoming-direction middleware in listed order, then
// invokes backends in listed order until one returns non-Skipped, then
// applies outgoing-direction middleware in reverse order.
func (p *Pipeline) Execute(ctx context.Context, env *Envelope) (*Response, *errortaxonomy.Error) {
	lastApplied := -1

	for i, mw := range p.Middleware {
		lastApplied = i
		outcome, ferr := mw.HandleIncoming(ctx, env)
		switch outcome {
		case Continue:
			continue
		case ShortCircuited:
			goto outgoing
		case Failed:
			return nil, ferr
		}
	}

	if err := p.dispatch(ctx, env); err != nil {
		return nil, err
	}

outgoing:
	for i := lastApplied; i >= 0; i-- {
		outcome, ferr := p.Middleware[i].HandleOutgoing(ctx, env)
		if outcome == Failed {
			return nil, ferr
		}
	}

	if resp, ok := env.ShortCircuit(); ok {
		return resp, nil
	}
	return nil, errortaxonomy.New(errortaxonomy.NotFound, "no backend produced a response")
}

// dispatch invokes backends in listed order until one returns non-Skipped.
// If every backend skips and no short-circuit response is set, the caller's
// Execute synthesizes a NotFound.
func (p *Pipeline) dispatch(ctx context.Context, env *Envelope) *errortaxonomy.Error {
	for _, b := range p.Backends {
		outcome, ferr := b.Dispatch(ctx, env)
		switch outcome {
		case Skipped:
			continue
		case Failed:
			return ferr
		default:
			return nil
		}
	}
	return nil
}
