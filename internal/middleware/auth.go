package middleware

import (
	"context"
	"net/http"

	httpmw "github.com/dicomgateway/gatewayd/internal/httpapi/middleware"
	"github.com/dicomgateway/gatewayd/internal/envelope"
	"github.com/dicomgateway/gatewayd/internal/errortaxonomy"
)

// authSubjectMetadataKey is the target_details metadata key the auth
// middleware records the authenticated subject under, for downstream
// middleware/backends that want to log or scope on it.
const authSubjectMetadataKey = "auth.subject"

// authMiddleware adapts httpapi/middleware.Authenticator (an HTTP-shaped
// interface) to envelope.Middleware by building a minimal *http.Request
// from target_details headers; Authenticate only ever reads the
// Authorization header off it.
type authMiddleware struct {
	name        string
	auth        httpmw.Authenticator
	failOnError bool
}

func (m *authMiddleware) Name() string { return m.name }

func (m *authMiddleware) HandleIncoming(_ context.Context, env *envelope.Envelope) (envelope.Outcome, *errortaxonomy.Error) {
	target := env.TargetDetails()
	req := &http.Request{Header: target.Headers}

	claims, err := m.auth.Authenticate(req)
	if err != nil {
		if !m.failOnError {
			return envelope.Continue, nil
		}
		return envelope.Failed, errortaxonomy.Wrap(errortaxonomy.AuthFailure, "authentication failed", err)
	}

	if target.Metadata == nil {
		target.Metadata = map[string]string{}
	}
	target.Metadata[authSubjectMetadataKey] = claims.UserID
	env.SetTargetDetails(target)
	return envelope.Continue, nil
}

func (m *authMiddleware) HandleOutgoing(_ context.Context, _ *envelope.Envelope) (envelope.Outcome, *errortaxonomy.Error) {
	return envelope.Continue, nil
}

var _ envelope.Middleware = (*authMiddleware)(nil)
