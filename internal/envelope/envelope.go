// Package envelope implements the gateway's request envelope and pipeline
// engine: composition of ordered middleware around a backend call, request
// envelope propagation, short-circuit semantics, and error mapping to HTTP
// status codes.
package envelope

import "net/http"

// Protocol tags the origin of an envelope's original payload.
type Protocol string

const (
	ProtocolHTTP  Protocol = "HTTP"
	ProtocolDIMSE Protocol = "DIMSE"
	ProtocolJMIX  Protocol = "JMIX"
)

// Details carries the method/uri/headers/query/metadata view of a request.
// request_details is built once at envelope construction and never mutated
// afterward; target_details starts as a clone and is the only copy
// middleware may write to.
type Details struct {
	Method   string
	URI      string
	Headers  http.Header
	Query    map[string][]string
	Metadata map[string]string
}

// clone returns a deep copy of d so request_details and target_details never
// alias the same backing maps.
func (d Details) clone() Details {
	headers := make(http.Header, len(d.Headers))
	for k, v := range d.Headers {
		vv := make([]string, len(v))
		copy(vv, v)
		headers[k] = vv
	}
	query := make(map[string][]string, len(d.Query))
	for k, v := range d.Query {
		vv := make([]string, len(v))
		copy(vv, v)
		query[k] = vv
	}
	metadata := make(map[string]string, len(d.Metadata))
	for k, v := range d.Metadata {
		metadata[k] = v
	}
	return Details{Method: d.Method, URI: d.URI, Headers: headers, Query: query, Metadata: metadata}
}

// Payload is the opaque original request body plus its protocol tag.
type Payload struct {
	Protocol Protocol
	Bytes    []byte
}

// Response is a pre-built response a middleware or backend can short-circuit
// the pipeline with.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
	Headers     http.Header
}

// Envelope carries one request across the pipeline. requestDetails is set
// once at construction; targetDetails is the only mutable sibling, cloned
// from requestDetails at construction time and monotonically mutable
// thereafter (writes win last).
type Envelope struct {
	requestDetails Details
	targetDetails  Details

	originalPayload Payload
	normalizedData  []byte // optional JSON projection, rebuildable from originalPayload

	shortCircuit *Response
}

// New constructs an Envelope from the inbound request details and payload.
// targetDetails starts as a clone of requestDetails.
func New(request Details, payload Payload) *Envelope {
	return &Envelope{
		requestDetails:  request.clone(),
		targetDetails:   request.clone(),
		originalPayload: payload,
	}
}

// RequestDetails returns the immutable original request view.
func (e *Envelope) RequestDetails() Details {
	return e.requestDetails
}

// TargetDetails returns the current mutable target view.
func (e *Envelope) TargetDetails() Details {
	return e.targetDetails
}

// SetTargetDetails replaces the mutable target view. Middleware call this to
// record changes; requestDetails is never touched.
func (e *Envelope) SetTargetDetails(d Details) {
	e.targetDetails = d
}

// OriginalPayload returns the original opaque payload and its protocol tag.
func (e *Envelope) OriginalPayload() Payload {
	return e.originalPayload
}

// NormalizedData returns the optional JSON projection of the payload, if one
// has been computed.
func (e *Envelope) NormalizedData() ([]byte, bool) {
	if e.normalizedData == nil {
		return nil, false
	}
	return e.normalizedData, true
}

// SetNormalizedData stores a JSON projection of originalPayload. Callers
// must rebuild it from originalPayload under the same protocol tag; the
// envelope does not validate that invariant itself.
func (e *Envelope) SetNormalizedData(data []byte) {
	e.normalizedData = data
}

// ShortCircuit returns the pre-built response, if the pipeline has been
// asked to stop calling further incoming middleware.
func (e *Envelope) ShortCircuit() (*Response, bool) {
	if e.shortCircuit == nil {
		return nil, false
	}
	return e.shortCircuit, true
}

// SetShortCircuit marks the envelope to stop further incoming middleware.
// Outgoing middleware still run in reverse order over the short-circuited
// response.
func (e *Envelope) SetShortCircuit(resp *Response) {
	e.shortCircuit = resp
}
