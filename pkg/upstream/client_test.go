package upstream_test

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/illmade-knight/go-apicache/pkg/types"
	"github.com/illmade-knight/go-apicache/pkg/upstream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, url string, timeout time.Duration) *upstream.Client {
	t.Helper()
	cfg := upstream.DefaultConfig()
	cfg.Endpoint = url
	cfg.Timeout = timeout
	c, err := upstream.NewClient(cfg, &http.Client{Timeout: timeout}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestClient_Fetch(t *testing.T) {
	testCases := []struct {
		name     string
		status   int
		body     string
		wantKind upstream.Kind
		want     any
		wantMsg  string
	}{
		{name: "object", status: 200, body: `{"a":1,"b":[1,2,3]}`, want: map[string]any{"a": json.Number("1"), "b": []any{json.Number("1"), json.Number("2"), json.Number("3")}}},
		{name: "array", status: 200, body: `[{"id":1}]`, want: []any{map[string]any{"id": json.Number("1")}}},
		{name: "empty object is valid", status: 200, body: `{}`, want: map[string]any{}},
		{name: "empty array is valid", status: 200, body: `[]`, want: []any{}},
		{name: "not found", status: 404, body: `{}`, wantKind: upstream.KindHTTPStatus, wantMsg: "API returned invalid response code: 404"},
		{name: "server error", status: 503, body: ``, wantKind: upstream.KindHTTPStatus, wantMsg: "API returned invalid response code: 503"},
		{name: "non-200 success", status: 204, body: ``, wantKind: upstream.KindHTTPStatus},
		{name: "malformed json", status: 200, body: `{"a":`, wantKind: upstream.KindParse, wantMsg: "Failed to parse API response"},
		{name: "empty body", status: 200, body: ``, wantKind: upstream.KindParse},
		{name: "trailing garbage", status: 200, body: `{} x`, wantKind: upstream.KindParse},
		{name: "scalar string", status: 200, body: `"hello"`, wantKind: upstream.KindSchema, wantMsg: "API returned invalid data structure"},
		{name: "scalar number", status: 200, body: `42`, wantKind: upstream.KindSchema},
		{name: "top-level null", status: 200, body: `null`, wantKind: upstream.KindSchema},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Accept"))
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			t.Cleanup(server.Close)

			payload, err := newTestClient(t, server.URL, 5*time.Second).Fetch(context.Background())

			if tc.wantKind != 0 {
				require.Error(t, err)
				assert.Nil(t, payload)
				assert.Equal(t, tc.wantKind, upstream.KindOf(err))
				if tc.wantMsg != "" {
					assert.Contains(t, err.Error(), tc.wantMsg)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, payload)
		})
	}
}

func TestClient_Fetch_TransportErrors(t *testing.T) {
	t.Run("connection refused", func(t *testing.T) {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		_, err := newTestClient(t, url, time.Second).Fetch(context.Background())
		require.Error(t, err)
		assert.Equal(t, upstream.KindTransport, upstream.KindOf(err))
		assert.True(t, strings.HasPrefix(err.Error(), "Failed to fetch data from API: "))

		var ue *upstream.Error
		require.True(t, errors.As(err, &ue))
		assert.NotNil(t, ue.Unwrap(), "the underlying cause is preserved")
		assert.Equal(t, "Failed to fetch data from API", ue.Message)
		assert.NotContains(t, ue.Message, strings.TrimPrefix(url, "http://"), "the user message carries no dial detail")
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		t.Cleanup(func() {
			close(release)
			server.Close()
		})

		_, err := newTestClient(t, server.URL, 50*time.Millisecond).Fetch(context.Background())
		require.Error(t, err)
		assert.Equal(t, upstream.KindTransport, upstream.KindOf(err))
	})

	t.Run("untrusted certificate is rejected", func(t *testing.T) {
		server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		}))
		t.Cleanup(server.Close)

		cfg := upstream.DefaultConfig()
		cfg.Endpoint = server.URL
		c, err := upstream.NewClient(cfg, nil, zerolog.Nop())
		require.NoError(t, err)

		_, err = c.Fetch(context.Background())
		require.Error(t, err)
		assert.Equal(t, upstream.KindTransport, upstream.KindOf(err))
	})
}

func TestClient_Fetch_BodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[` + strings.Repeat(`1,`, 100) + `1]`))
	}))
	t.Cleanup(server.Close)

	cfg := upstream.Config{Endpoint: server.URL, Timeout: time.Second, MaxBodyBytes: 16}
	c, err := upstream.NewClient(cfg, &http.Client{Timeout: time.Second}, zerolog.Nop())
	require.NoError(t, err)

	_, err = c.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, upstream.KindParse, upstream.KindOf(err))
}

func TestNewClient_RequiresEndpoint(t *testing.T) {
	_, err := upstream.NewClient(upstream.Config{}, nil, zerolog.Nop())
	require.Error(t, err)
}

func TestError_IsMatchesKind(t *testing.T) {
	err := error(&upstream.Error{Kind: upstream.KindSchema, Message: "API returned invalid data structure"})
	assert.ErrorIs(t, err, &upstream.Error{Kind: upstream.KindSchema})
	assert.NotErrorIs(t, err, &upstream.Error{Kind: upstream.KindParse})
	assert.Equal(t, "schema_error", upstream.KindSchema.String())
}

func TestClient_Fetch_KeepsLargeIntegers(t *testing.T) {
	const body = `{"id":9007199254740993,"ids":[18446744073709551615],"ratio":0.1}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	payload, err := newTestClient(t, server.URL, 5*time.Second).Fetch(context.Background())
	require.NoError(t, err)

	encoded, err := types.Encode(payload)
	require.NoError(t, err)
	assert.Equal(t, body, string(encoded))

	decoded, err := types.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestClient_Fetch_ParseErrorHidesDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"a":`))
	}))
	t.Cleanup(server.Close)

	_, err := newTestClient(t, server.URL, 5*time.Second).Fetch(context.Background())
	var ue *upstream.Error
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "Failed to parse API response", ue.Message)
	assert.Contains(t, err.Error(), "unexpected EOF", "the cause stays in the error chain")
}

func TestNewClient_DefaultTransportVerifiesCertificates(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(server.Close)

	cfg := upstream.DefaultConfig()
	cfg.Endpoint = server.URL
	c, err := upstream.NewClient(cfg, nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = c.Fetch(context.Background())
	require.Error(t, err, "a self-signed certificate must be rejected")
	assert.Equal(t, upstream.KindTransport, upstream.KindOf(err))

	var certErr *tls.CertificateVerificationError
	assert.True(t, errors.As(err, &certErr), "rejected during certificate verification: %v", err)
}
