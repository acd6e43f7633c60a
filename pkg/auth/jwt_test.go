package auth_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/illmade-knight/go-apicache/pkg/auth"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func newTestAuthenticator(t *testing.T, now *time.Time) *auth.Authenticator {
	t.Helper()
	cfg := auth.DefaultConfig()
	cfg.SigningKey = testKey
	a, err := auth.NewAuthenticator(cfg, zerolog.Nop())
	require.NoError(t, err)
	if now != nil {
		a.WithClock(func() time.Time { return *now })
	}
	return a
}

func bearerRequest(token string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/api/refresh", nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func TestNewAuthenticator_RequiresKey(t *testing.T) {
	_, err := auth.NewAuthenticator(auth.Config{SigningKey: "short"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestAuthenticator_Authenticate(t *testing.T) {
	a := newTestAuthenticator(t, nil)

	adminToken, err := a.IssueToken("alice", []string{"admin"}, time.Hour)
	require.NoError(t, err)

	otherKey := auth.DefaultConfig()
	otherKey.SigningKey = strings.Repeat("x", 32)
	stranger, err := auth.NewAuthenticator(otherKey, zerolog.Nop())
	require.NoError(t, err)
	forged, err := stranger.IssueToken("mallory", []string{"admin"}, time.Hour)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "eve", "iss": "apicache", "exp": time.Now().Add(time.Hour).Unix()})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	testCases := []struct {
		name    string
		request *http.Request
		wantErr error
	}{
		{name: "valid token", request: bearerRequest(adminToken)},
		{name: "no header", request: bearerRequest(""), wantErr: auth.ErrMissingCredentials},
		{name: "wrong scheme", request: func() *http.Request {
			r := bearerRequest("")
			r.Header.Set("Authorization", "Basic abc")
			return r
		}(), wantErr: auth.ErrMissingCredentials},
		{name: "garbage token", request: bearerRequest("not-a-jwt"), wantErr: auth.ErrInvalidCredentials},
		{name: "wrong signing key", request: bearerRequest(forged), wantErr: auth.ErrInvalidCredentials},
		{name: "alg none", request: bearerRequest(unsigned), wantErr: auth.ErrInvalidCredentials},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := a.Authenticate(tc.request)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.True(t, auth.IsUnauthenticated(err))
				assert.Nil(t, id)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "alice", id.Subject)
			assert.True(t, id.HasRole("admin"))
		})
	}
}

func TestAuthenticator_ExpiredToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := newTestAuthenticator(t, &now)

	token, err := a.IssueToken("alice", []string{"admin"}, time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = a.Authenticate(bearerRequest(token))
	assert.ErrorIs(t, err, auth.ErrTokenExpired)
}

func TestAuthenticator_Authorize(t *testing.T) {
	a := newTestAuthenticator(t, nil)

	assert.NoError(t, a.Authorize(&auth.Identity{Subject: "alice", Roles: []string{"viewer", "admin"}}))
	assert.ErrorIs(t, a.Authorize(&auth.Identity{Subject: "bob", Roles: []string{"viewer"}}), auth.ErrForbidden)
	assert.ErrorIs(t, a.Authorize(nil), auth.ErrMissingCredentials)
}

func TestAuthenticator_Nonce(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := newTestAuthenticator(t, &now)
	alice := &auth.Identity{Subject: "alice", Roles: []string{"admin"}}
	bob := &auth.Identity{Subject: "bob", Roles: []string{"admin"}}

	nonce, expires, err := a.IssueNonce(alice, auth.ActionRefresh)
	require.NoError(t, err)
	assert.Equal(t, now.Add(auth.DefaultNonceTTL), expires)

	assert.NoError(t, a.VerifyNonce(nonce, alice, auth.ActionRefresh))
	assert.ErrorIs(t, a.VerifyNonce(nonce, bob, auth.ActionRefresh), auth.ErrInvalidNonce, "bound to its subject")
	assert.ErrorIs(t, a.VerifyNonce(nonce, alice, "delete"), auth.ErrInvalidNonce, "bound to its action")
	assert.ErrorIs(t, a.VerifyNonce("", alice, auth.ActionRefresh), auth.ErrInvalidNonce)

	bearer, err := a.IssueToken("alice", []string{"admin"}, time.Hour)
	require.NoError(t, err)
	assert.ErrorIs(t, a.VerifyNonce(bearer, alice, auth.ActionRefresh), auth.ErrInvalidNonce, "a bearer token is not a nonce")

	now = now.Add(auth.DefaultNonceTTL + time.Second)
	assert.ErrorIs(t, a.VerifyNonce(nonce, alice, auth.ActionRefresh), auth.ErrInvalidNonce)
}

func TestRequireAdmin(t *testing.T) {
	a := newTestAuthenticator(t, nil)
	adminToken, err := a.IssueToken("alice", []string{"admin"}, time.Hour)
	require.NoError(t, err)
	viewerToken, err := a.IssueToken("bob", []string{"viewer"}, time.Hour)
	require.NoError(t, err)

	var seen *auth.Identity
	handler := a.RequireAdmin(func(w http.ResponseWriter, _ *http.Request, status int, _ error) {
		w.WriteHeader(status)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = auth.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	testCases := []struct {
		name   string
		token  string
		status int
	}{
		{name: "admin", token: adminToken, status: http.StatusNoContent},
		{name: "viewer", token: viewerToken, status: http.StatusForbidden},
		{name: "anonymous", token: "", status: http.StatusUnauthorized},
		{name: "bad token", token: "xxx", status: http.StatusUnauthorized},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, bearerRequest(tc.token))
			assert.Equal(t, tc.status, rec.Code)
		})
	}
	require.NotNil(t, seen)
	assert.Equal(t, "alice", seen.Subject)
}

func TestNonceFromRequest(t *testing.T) {
	form := url.Values{"nonce": {"from-form"}}
	r := httptest.NewRequest(http.MethodPost, "/api/refresh", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set(auth.NonceHeader, "from-header")
	assert.Equal(t, "from-form", auth.NonceFromRequest(r))

	r = httptest.NewRequest(http.MethodPost, "/api/refresh", nil)
	r.Header.Set(auth.NonceHeader, "from-header")
	assert.Equal(t, "from-header", auth.NonceFromRequest(r))
}

func cookieRequest(token string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/admin", nil)
	r.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: token})
	return r
}

func TestAuthenticator_SessionCookie(t *testing.T) {
	a := newTestAuthenticator(t, nil)
	adminToken, err := a.IssueToken("alice", []string{"admin"}, time.Hour)
	require.NoError(t, err)
	viewerToken, err := a.IssueToken("bob", []string{"viewer"}, time.Hour)
	require.NoError(t, err)

	t.Run("cookie is used without a header", func(t *testing.T) {
		id, err := a.Authenticate(cookieRequest(adminToken))
		require.NoError(t, err)
		assert.Equal(t, "alice", id.Subject)
	})

	t.Run("header wins over cookie", func(t *testing.T) {
		r := cookieRequest(adminToken)
		r.Header.Set("Authorization", "Bearer "+viewerToken)
		id, err := a.Authenticate(r)
		require.NoError(t, err)
		assert.Equal(t, "bob", id.Subject)
	})

	t.Run("bad cookie is rejected", func(t *testing.T) {
		_, err := a.Authenticate(cookieRequest("not-a-jwt"))
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})
}

func TestAuthenticator_Login(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	a := newTestAuthenticator(t, &now)
	adminToken, err := a.IssueToken("alice", []string{"admin"}, time.Hour)
	require.NoError(t, err)
	viewerToken, err := a.IssueToken("bob", []string{"viewer"}, time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/admin/login", nil)

	cookie, id, err := a.Login(r, " "+adminToken+" ")
	require.NoError(t, err)
	assert.Equal(t, "alice", id.Subject)
	assert.Equal(t, auth.SessionCookie, cookie.Name)
	assert.Equal(t, adminToken, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.True(t, cookie.Expires.Equal(now.Add(time.Hour)), "the session ends with the token")

	_, _, err = a.Login(r, viewerToken)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, _, err = a.Login(r, "")
	assert.ErrorIs(t, err, auth.ErrMissingCredentials)

	_, _, err = a.Login(r, "garbage")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	assert.Equal(t, -1, auth.LogoutCookie().MaxAge)
}
