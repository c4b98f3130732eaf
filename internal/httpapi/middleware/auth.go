package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/dicomgateway/gatewayd/internal/ctxutil"
	"github.com/dicomgateway/gatewayd/internal/errortaxonomy"
	"github.com/dicomgateway/gatewayd/internal/httpapi/response"
)

// Sentinel errors returned by Authenticator implementations.
var (
	// ErrUnauthenticated indicates authentication failed (invalid credentials).
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrTokenExpired indicates the token has expired.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid indicates the token format or signature is invalid.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrNoClaimsInContext indicates claims were not found in context.
	ErrNoClaimsInContext = ctxutil.ErrNoClaimsInContext
)

// Authenticator validates credentials carried by an inbound HTTP request and
// returns the resulting claims. The gateway's "auth" and "jwt_auth"
// middleware kinds are both Authenticator implementations behind this one
// interface.
type Authenticator interface {
	Authenticate(r *http.Request) (Claims, error)
}

// Claims is an alias for ctxutil.Claims.
type Claims = ctxutil.Claims

// NewContext returns a new context with the given claims.
func NewContext(ctx context.Context, claims Claims) context.Context {
	return ctxutil.NewClaimsContext(ctx, claims)
}

// FromContext extracts claims from context.
func FromContext(ctx context.Context) (Claims, error) {
	return ctxutil.ClaimsFromContext(ctx)
}

// AuthMiddleware returns middleware that authenticates every request with
// auth and stores the resulting claims in the request context. A failed
// authentication short-circuits the pipeline with Fail(AuthFailure), which
// the envelope's error mapping turns into a 401 with no body leakage.
func AuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := auth.Authenticate(r)
			if err != nil {
				response.WriteError(w, r, errortaxonomy.Wrap(errortaxonomy.AuthFailure, "authentication failed", err))
				return
			}

			ctx := ctxutil.NewClaimsContext(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
