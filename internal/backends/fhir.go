// Package backends implements the egress backend drivers the pipeline
// engine dispatches to: DIMSE SCU, FHIR HTTP, JMIX archive store, and the
// trivial echo backend.
package backends

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/dicomgateway/gatewayd/internal/envelope"
	"github.com/dicomgateway/gatewayd/internal/errortaxonomy"
)

// FHIR is a thin net/http client backend: it forwards the envelope's
// method/uri/headers/body to a configured base URL and maps non-2xx
// responses to Fail(Network) (502), or Fail(NotFound) for 404. Payload
// *shape* is an external collaborator concern — this driver only proxies
// bytes.
type FHIR struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

// NewFHIR constructs a FHIR backend bound to baseURL.
func NewFHIR(name, baseURL string, connectTimeout time.Duration) *FHIR {
	return &FHIR{
		name:    name,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: connectTimeout,
		},
	}
}

func (f *FHIR) Name() string { return f.name }

// Dispatch proxies the envelope's target request to the FHIR base URL,
// honoring the pipeline deadline via the request's context.
func (f *FHIR) Dispatch(ctx context.Context, env *envelope.Envelope) (envelope.Outcome, *errortaxonomy.Error) {
	target := env.TargetDetails()
	payload := env.OriginalPayload()

	req, err := http.NewRequestWithContext(ctx, target.Method, f.baseURL+target.URI, bytes.NewReader(payload.Bytes))
	if err != nil {
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.Config, "failed to build FHIR request", err)
	}
	for k, vs := range target.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.Network, "FHIR backend unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.Network, "failed to read FHIR response", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return envelope.Failed, errortaxonomy.New(errortaxonomy.NotFound, "FHIR backend returned 404")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return envelope.Failed, errortaxonomy.Newf(errortaxonomy.Network, "FHIR backend returned status %d", resp.StatusCode)
	}

	env.SetShortCircuit(&envelope.Response{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	})
	return envelope.Continue, nil
}

var _ envelope.Backend = (*FHIR)(nil)
