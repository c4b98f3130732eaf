package backends

import (
	"context"
	"encoding/json"

	"github.com/dicomgateway/gatewayd/internal/envelope"
	"github.com/dicomgateway/gatewayd/internal/errortaxonomy"
)

// EchoIssuer issues a C-ECHO against a named destination AET.
// Implemented by internal/dimse/client.SCU.
type EchoIssuer interface {
	Echo(ctx context.Context, destinationAET string) error
}

// Echo is the trivial diagnostic backend behind scenario 1: it issues a
// C-ECHO via the DIMSE SCU client and renders the outcome as JSON.
type Echo struct {
	name           string
	issuer         EchoIssuer
	destinationAET string
}

// NewEcho constructs an Echo backend bound to one destination AET.
func NewEcho(name, destinationAET string, issuer EchoIssuer) *Echo {
	return &Echo{name: name, issuer: issuer, destinationAET: destinationAET}
}

func (e *Echo) Name() string { return e.name }

type echoResult struct {
	Operation string `json:"operation"`
	Success   bool   `json:"success"`
}

// Dispatch always succeeds or fails outright; it never skips.
func (e *Echo) Dispatch(ctx context.Context, env *envelope.Envelope) (envelope.Outcome, *errortaxonomy.Error) {
	err := e.issuer.Echo(ctx, e.destinationAET)

	body, marshalErr := json.Marshal(echoResult{Operation: "echo", Success: err == nil})
	if marshalErr != nil {
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.DicomParsing, "failed to render echo result", marshalErr)
	}

	env.SetShortCircuit(&envelope.Response{
		Status:      200,
		ContentType: "application/json",
		Body:        body,
	})
	// A failed C-ECHO still renders as a 200 with success=false; the
	// pipeline itself did its job.
	return envelope.Continue, nil
}

var _ envelope.Backend = (*Echo)(nil)
