package auth

import (
	"net/http"
)

// DenyFunc writes the response for a rejected request.
type DenyFunc func(w http.ResponseWriter, r *http.Request, status int, err error)

// RequireAdmin only lets requests through that carry a valid bearer token,
// in the Authorization header or the session cookie, with the admin role. Unauthenticated callers get 401, others 403. The identity is
// attached to the request context.
func (a *Authenticator) RequireAdmin(deny DenyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.Authenticate(r)
			if err != nil {
				a.logger.Debug().Err(err).Str("path", r.URL.Path).Msg("Request not authenticated.")
				deny(w, r, http.StatusUnauthorized, err)
				return
			}
			if err := a.Authorize(id); err != nil {
				a.logger.Warn().Str("subject", id.Subject).Str("path", r.URL.Path).Msg("Request not authorized.")
				deny(w, r, http.StatusForbidden, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// NonceFromRequest returns the nonce from the "nonce" form field, falling back
// to the NonceHeader header.
func NonceFromRequest(r *http.Request) string {
	if v := r.PostFormValue("nonce"); v != "" {
		return v
	}
	return r.Header.Get(NonceHeader)
}
