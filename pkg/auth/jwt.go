// Package auth identifies privileged callers by HS256 bearer tokens and issues
// short-lived anti-forgery nonces for state-changing requests. Browsers carry
// the same token in a session cookie set at login.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Defaults for tokens and nonces.
const (
	DefaultIssuer    = "apicache"
	DefaultAdminRole = "admin"
	DefaultNonceTTL  = 10 * time.Minute
	DefaultTokenTTL  = 24 * time.Hour

	// NonceHeader carries a refresh nonce when it is not sent as a form field.
	NonceHeader = "X-Refresh-Nonce"
	// ActionRefresh is the action a refresh nonce is bound to.
	ActionRefresh = "refresh"
	// SessionCookie holds the bearer token for browser sessions.
	SessionCookie = "apicache_session"
)

// Config holds configuration for token verification and nonce issuance.
type Config struct {
	// SigningKey is the shared HMAC secret. It must be at least 32 bytes.
	SigningKey string        `yaml:"signing_key"`
	Issuer     string        `yaml:"issuer"`
	AdminRole  string        `yaml:"admin_role"`
	NonceTTL   time.Duration `yaml:"nonce_ttl"`
}

// DefaultConfig returns settings with everything but the signing key filled in.
func DefaultConfig() Config {
	return Config{
		Issuer:    DefaultIssuer,
		AdminRole: DefaultAdminRole,
		NonceTTL:  DefaultNonceTTL,
	}
}

type tokenClaims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

type nonceClaims struct {
	Action string `json:"act"`
	jwt.RegisteredClaims
}

// Authenticator validates bearer tokens and issues and checks nonces.
type Authenticator struct {
	key       []byte
	issuer    string
	adminRole string
	nonceTTL  time.Duration
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAuthenticator creates an Authenticator from cfg.
func NewAuthenticator(cfg Config, logger zerolog.Logger) (*Authenticator, error) {
	if len(cfg.SigningKey) < 32 {
		return nil, errors.New("auth signing key must be at least 32 bytes")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = DefaultIssuer
	}
	if cfg.AdminRole == "" {
		cfg.AdminRole = DefaultAdminRole
	}
	if cfg.NonceTTL <= 0 {
		cfg.NonceTTL = DefaultNonceTTL
	}
	return &Authenticator{
		key:       []byte(cfg.SigningKey),
		issuer:    cfg.Issuer,
		adminRole: cfg.AdminRole,
		nonceTTL:  cfg.NonceTTL,
		logger:    logger.With().Str("component", "Authenticator").Logger(),
		now:       time.Now,
	}, nil
}

// WithClock replaces the authenticator's time source.
func (a *Authenticator) WithClock(clock func() time.Time) *Authenticator {
	a.now = clock
	return a
}

// AdminRole returns the role required for privileged operations.
func (a *Authenticator) AdminRole() string {
	return a.adminRole
}

// IssueToken mints a bearer token for subject with the given roles.
func (a *Authenticator) IssueToken(subject string, roles []string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("token subject is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := a.now()
	claims := tokenClaims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Authenticate extracts and verifies the bearer token on r. The Authorization
// header wins; without one the session cookie is used.
func (a *Authenticator) Authenticate(r *http.Request) (*Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		c, err := r.Cookie(SessionCookie)
		if err != nil || c.Value == "" {
			return nil, ErrMissingCredentials
		}
		return a.verifyToken(c.Value)
	}
	tokenString, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(tokenString) == "" {
		return nil, ErrMissingCredentials
	}
	return a.verifyToken(strings.TrimSpace(tokenString))
}

// Login checks that tokenString belongs to an admin and returns the session
// cookie that carries it until the token expires.
func (a *Authenticator) Login(r *http.Request, tokenString string) (*http.Cookie, *Identity, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, nil, ErrMissingCredentials
	}
	id, err := a.verifyToken(tokenString)
	if err != nil {
		return nil, nil, err
	}
	if err := a.Authorize(id); err != nil {
		return nil, id, err
	}
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    tokenString,
		Path:     "/",
		Expires:  id.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	}, id, nil
}

// LogoutCookie returns a cookie that clears the browser session.
func LogoutCookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func (a *Authenticator) verifyToken(tokenString string) (*Identity, error) {
	var claims tokenClaims
	if err := a.parse(tokenString, &claims); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, ErrInvalidCredentials
	}

	id := &Identity{Subject: claims.Subject, Roles: claims.Roles}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// Authorize checks that id holds the admin role.
func (a *Authenticator) Authorize(id *Identity) error {
	if id == nil {
		return ErrMissingCredentials
	}
	if !id.HasRole(a.adminRole) {
		return fmt.Errorf("%w: role %q required", ErrForbidden, a.adminRole)
	}
	return nil
}

// IssueNonce returns a nonce that lets id perform action until it expires.
func (a *Authenticator) IssueNonce(id *Identity, action string) (string, time.Time, error) {
	if id == nil {
		return "", time.Time{}, ErrMissingCredentials
	}
	now := a.now()
	expires := now.Add(a.nonceTTL)
	claims := nonceClaims{
		Action: action,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   id.Subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign nonce: %w", err)
	}
	return signed, expires, nil
}

// VerifyNonce checks that nonce was issued to id for action and has not expired.
func (a *Authenticator) VerifyNonce(nonce string, id *Identity, action string) error {
	if nonce == "" || id == nil {
		return ErrInvalidNonce
	}
	var claims nonceClaims
	if err := a.parse(nonce, &claims); err != nil {
		a.logger.Debug().Err(err).Msg("Nonce rejected.")
		return fmt.Errorf("%w: %v", ErrInvalidNonce, err)
	}
	if claims.Subject != id.Subject || claims.Action != action {
		return ErrInvalidNonce
	}
	return nil
}

func (a *Authenticator) parse(tokenString string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return a.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err == nil {
		return nil
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		return ErrTokenExpired
	}
	return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
}
