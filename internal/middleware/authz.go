package middleware

import (
	"net/http"

	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/iam"
)

// ResourceFunc derives the three-part RBAC resource coordinate
// ("namespace:group:dataId") a given request authorizes against, read from
// its route params or query string by the caller.
type ResourceFunc func(r *http.Request) string

// RequireAuth builds a Chi-compatible middleware that authorizes the
// context's principal (attached upstream by NewAuthn) against the resource
// resourceFn derives from the request, for the given action: a per-route
// authz wrapper around a single (principal, resource, action) decision.
func RequireAuth(svc *iam.Service, resourceFn ResourceFunc, action iam.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := PrincipalFromContext(r.Context())
			resource := resourceFn(r)

			if err := svc.Authorize(r.Context(), principal, resource, action); err != nil {
				writeAuthError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	status := apierr.HTTPStatus(apierr.KindOf(err))
	http.Error(w, err.Error(), status)
}
