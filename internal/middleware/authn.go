// Package middleware provides the HTTP admin surface's authentication and
// authorization wrappers, translating the raw accessToken on a request into
// an iam.Principal the downstream handlers authorize against.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/easynet-cn/batata/internal/iam"
)

type principalContextKey struct{}

// PrincipalFromContext retrieves the principal authn attached to the
// request context. Returns iam.Anonymous if none was attached.
func PrincipalFromContext(ctx context.Context) iam.Principal {
	if p, ok := ctx.Value(principalContextKey{}).(iam.Principal); ok {
		return p
	}
	return iam.Anonymous
}

func withPrincipal(ctx context.Context, p iam.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// bearerToken extracts the accessToken from the Authorization header
// ("Bearer <token>") or the accessToken query parameter, matching spec
// §6's "Authentication by accessToken query parameter or Authorization
// header".
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if rest, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return rest
		}
		return auth
	}
	return r.URL.Query().Get("accessToken")
}

// NewAuthn builds the authentication middleware: it resolves the request's
// accessToken into a Principal and attaches it to the context, but never
// rejects a request outright — anonymous requests pass through so a
// downstream handler (or NewAuthz) can decide whether the route requires
// authentication, deferring the reject decision to downstream
// authorization.
func NewAuthn(svc *iam.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), iam.Anonymous)))
				return
			}

			principal, err := svc.Verify(r.Context(), token)
			if err != nil {
				next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), iam.Anonymous)))
				return
			}

			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
		})
	}
}
