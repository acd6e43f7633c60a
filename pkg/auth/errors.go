package auth

import "errors"

// Sentinel errors for authentication and authorization.
var (
	// Authentication errors
	ErrMissingCredentials = errors.New("auth: missing credentials")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrTokenExpired       = errors.New("auth: token expired")

	// Authorization errors
	ErrForbidden    = errors.New("auth: access denied")
	ErrInvalidNonce = errors.New("auth: invalid or expired nonce")
)

// IsUnauthenticated reports whether err means the caller did not prove who they are.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, ErrMissingCredentials) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrTokenExpired)
}
