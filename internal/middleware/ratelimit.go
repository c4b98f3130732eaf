package middleware

import (
	"context"
	"net/http"

	"github.com/dicomgateway/gatewayd/internal/envelope"
	"github.com/dicomgateway/gatewayd/internal/errortaxonomy"
	httpmw "github.com/dicomgateway/gatewayd/internal/httpapi/middleware"
	"github.com/dicomgateway/gatewayd/internal/httpapi/request"
)

// rateLimitMiddleware enforces a per-key request rate ahead of the backend
// dispatch, keyed on the caller's real IP (trusting X-Forwarded-For/
// X-Real-IP the way the HTTP edge already does). The limiter's own default
// rate governs the check; options only pin a custom rate for every key this
// instance sees.
type rateLimitMiddleware struct {
	name        string
	limiter     httpmw.RateLimiter
	rate        *httpmw.Rate
	failOnError bool
}

func newRateLimitMiddleware(name string, limiter httpmw.RateLimiter, options map[string]any, failOnError bool) (envelope.Middleware, error) {
	mw := &rateLimitMiddleware{name: name, limiter: limiter, failOnError: failOnError}
	if _, ok := options["requests"]; ok {
		limit := int(optFloat(options, "requests", 100))
		period := optFloat(options, "period_seconds", 60)
		rate := httpmw.NewRate(limit, secondsToDuration(period))
		mw.rate = &rate
	}
	return mw, nil
}

func (m *rateLimitMiddleware) Name() string { return m.name }

func (m *rateLimitMiddleware) HandleIncoming(ctx context.Context, env *envelope.Envelope) (envelope.Outcome, *errortaxonomy.Error) {
	target := env.TargetDetails()
	key := request.GetRealIP(&http.Request{Header: target.Headers, RemoteAddr: ""}, true)

	if m.rate != nil {
		// Best-effort: pins this instance's configured rate onto the key.
		// A failure here just means the limiter falls back to its own
		// default rate for the Allow check below.
		_ = m.limiter.Limit(ctx, key, *m.rate)
	}

	allowed, err := m.limiter.Allow(ctx, key)
	if err != nil {
		// Fail-open, matching the HTTP-edge rate limiter's posture: a
		// limiter error should never itself block traffic.
		return envelope.Continue, nil
	}
	if !allowed {
		if !m.failOnError {
			return envelope.Continue, nil
		}
		return envelope.Failed, errortaxonomy.New(errortaxonomy.OperationFailed, "rate limit exceeded").WithHint("retry after the configured period")
	}
	return envelope.Continue, nil
}

func (m *rateLimitMiddleware) HandleOutgoing(_ context.Context, _ *envelope.Envelope) (envelope.Outcome, *errortaxonomy.Error) {
	return envelope.Continue, nil
}

var _ envelope.Middleware = (*rateLimitMiddleware)(nil)
