package auth

import (
	"errors"
	"net/http"
)

var errForbidden = errors.New("only admin or dispatcher can perform this action")

// DenyFunc writes the response for a rejected request.
type DenyFunc func(w http.ResponseWriter, r *http.Request, code int, err error)

// Middleware validates the Authorization bearer token of every request and
// stores the Principal in the request context. Failures go to deny with 401.
func Middleware(secret string, deny DenyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := ParseAuthorization(r.Header.Get("Authorization"), secret)
			if err != nil {
				deny(w, r, http.StatusUnauthorized, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireOperatorHTTP rejects callers that are not admins or dispatchers with 403.
// It must run after Middleware.
func RequireOperatorHTTP(deny DenyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, _ := FromContext(r.Context())
			if !p.IsOperator() {
				deny(w, r, http.StatusForbidden, errForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
