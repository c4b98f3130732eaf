// Package response renders gateway errors as RFC 7807 problem+json bodies
// and successful pipeline results as a thin data/meta envelope.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/moogar0880/problems"

	"github.com/dicomgateway/gatewayd/internal/ctxutil"
	"github.com/dicomgateway/gatewayd/internal/errortaxonomy"
)

// ContentTypeProblemJSON is the media type written by WriteProblem.
const ContentTypeProblemJSON = "application/problem+json"

var kindSlug = map[errortaxonomy.Kind]string{
	errortaxonomy.Config:               "config-error",
	errortaxonomy.Network:              "network-error",
	errortaxonomy.DicomParsing:         "dicom-parsing-error",
	errortaxonomy.DimseUl:              "dimse-upper-layer-error",
	errortaxonomy.AssociationRejected:  "association-rejected",
	errortaxonomy.OperationFailed:      "operation-failed",
	errortaxonomy.Timeout:              "timeout",
	errortaxonomy.AuthFailure:          "unauthorized",
	errortaxonomy.NotFound:             "not-found",
	errortaxonomy.Storage:              "storage-error",
	errortaxonomy.NotSupported:         "not-supported",
}

const problemTypeBase = "https://errors.gatewayd.dev/"

// Problem is an RFC 7807 Problem Details response, extended with the
// gateway's error kind and request/trace correlation ids.
type Problem struct {
	*problems.DefaultProblem

	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
	Hint      string `json:"hint,omitempty"`
}

// FromError builds a Problem from any error. If err wraps an
// *errortaxonomy.Error, its Kind drives the status/type/code; otherwise the
// error is classified as Network (502), and its
// message is never leaked to the client per the AuthFailure/no-body-leakage
// rule and general 5xx safety practice.
func FromError(r *http.Request, err error) *Problem {
	kind := errortaxonomy.Network
	message := "an internal error occurred"
	hint := ""

	if e, ok := errortaxonomy.As(err); ok {
		kind = e.Kind
		message = e.Message
		hint = e.Hint
	}

	status := kind.HTTPStatus()
	detail := message
	if status >= http.StatusInternalServerError {
		detail = "an internal error occurred"
	}
	if kind == errortaxonomy.AuthFailure {
		detail = "authentication required"
		hint = ""
	}

	base := problems.NewDetailedProblem(status, detail)
	base.Type = problemTypeBase + kindSlug[kind]
	base.Title = kind.String()

	p := &Problem{DefaultProblem: base, Code: kind.String(), Hint: hint}
	if r != nil {
		p.Instance = r.URL.Path
		p.RequestID = ctxutil.RequestIDFromContext(r.Context())
	}
	return p
}

// WriteProblem writes p as application/problem+json.
func WriteProblem(w http.ResponseWriter, p *Problem) {
	if p == nil {
		p = &Problem{DefaultProblem: problems.NewStatusProblem(http.StatusInternalServerError)}
	}
	if p.Status == 0 {
		p.Status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", ContentTypeProblemJSON)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteError maps err to a Problem and writes it.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	WriteProblem(w, FromError(r, err))
}

// RateLimitedProblem builds a 429 Problem. Rate limiting is a transport
// concern enforced before the pipeline runs, so it has no errortaxonomy.Kind.
func RateLimitedProblem(r *http.Request, retryAfterSeconds int) *Problem {
	base := problems.NewDetailedProblem(http.StatusTooManyRequests, "rate limit exceeded")
	base.Type = problemTypeBase + "rate-limit-exceeded"
	base.Title = "RATE_LIMIT_EXCEEDED"
	p := &Problem{DefaultProblem: base}
	if r != nil {
		p.Instance = r.URL.Path
		p.RequestID = ctxutil.RequestIDFromContext(r.Context())
	}
	return p
}

// WritePanicRecovered writes a bare 500 problem response for a recovered
// panic, where no errortaxonomy.Kind applies because the failure happened
// outside any classified boundary.
func WritePanicRecovered(w http.ResponseWriter, r *http.Request) {
	base := problems.NewDetailedProblem(http.StatusInternalServerError, "an internal error occurred")
	base.Type = problemTypeBase + "internal-error"
	base.Title = "INTERNAL_ERROR"
	p := &Problem{DefaultProblem: base}
	if r != nil {
		p.Instance = r.URL.Path
		p.RequestID = ctxutil.RequestIDFromContext(r.Context())
	}
	WriteProblem(w, p)
}
