package cli

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illmade-knight/go-apicache/pkg/auth"
	"github.com/illmade-knight/go-apicache/pkg/config"
	"github.com/illmade-knight/go-apicache/pkg/microservice"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

type upstreamStub struct {
	server *httptest.Server
	status atomic.Int32
	calls  atomic.Int32
}

func newUpstream(t *testing.T, body string) *upstreamStub {
	t.Helper()
	u := &upstreamStub{}
	u.status.Store(http.StatusOK)
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		u.calls.Add(1)
		status := int(u.status.Load())
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte(body))
		}
	}))
	t.Cleanup(u.server.Close)
	return u
}

func writeConfig(t *testing.T, endpoint string, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`log_level: error
http_port: "127.0.0.1:0"
upstream:
  endpoint: %s
cache:
  backend: file
  file:
    dir: %s
metrics:
  enabled: false
%s`, endpoint, filepath.Join(dir, "cache"), extra)
	path := filepath.Join(dir, "apicache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmdWithEnv("test", func(string) (string, bool) { return "", false })
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRefreshInfoClear(t *testing.T) {
	up := newUpstream(t, `[{"id":1},{"id":2},{"id":3}]`)
	path := writeConfig(t, up.server.URL+"/", "")

	out, err := execute(t, "--config", path, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing is cached yet.")
	assert.Equal(t, int32(0), up.calls.Load(), "info never fetches")

	out, err = execute(t, "--config", path, "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Success: Data marked for refresh. The cache will be bypassed on the next request.")
	assert.Contains(t, out, "Fetching fresh data from API...")
	assert.Contains(t, out, "Successfully fetched 3 items from API.")
	assert.Contains(t, out, "Cache will expire in: 1 hour")
	assert.Equal(t, int32(1), up.calls.Load())

	out, err = execute(t, "--config", path, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "Valid: true")
	assert.Contains(t, out, "Expires in: 1 hour")

	out, err = execute(t, "--config", path, "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Success: Cache cleared.")

	out, err = execute(t, "--config", path, "info")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing is cached yet.")
}

func TestRefresh_SingleItem(t *testing.T) {
	up := newUpstream(t, `{"title":"one"}`)
	path := writeConfig(t, up.server.URL+"/", "")

	out, err := execute(t, "--config", path, "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Successfully fetched 1 item from API.")
}

func TestRefresh_UpstreamFailure(t *testing.T) {
	up := newUpstream(t, "")
	up.status.Store(http.StatusBadGateway)
	path := writeConfig(t, up.server.URL+"/", "")

	_, err := execute(t, "--config", path, "refresh")
	require.Error(t, err)
	assert.Equal(t, "failed to fetch data: API returned invalid response code: 502", err.Error())
}

func TestRefresh_FallsBackToStoredData(t *testing.T) {
	up := newUpstream(t, `[{"id":1},{"id":2}]`)
	path := writeConfig(t, up.server.URL+"/", "")

	_, err := execute(t, "--config", path, "refresh")
	require.NoError(t, err)

	up.status.Store(http.StatusInternalServerError)
	out, err := execute(t, "--config", path, "refresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Successfully fetched 2 items from API.")
}

func TestToken(t *testing.T) {
	path := writeConfig(t, "https://example.test/", "auth:\n  signing_key: "+testSigningKey+"\n")

	out, err := execute(t, "--config", path, "token", "--subject", "ops", "--role", "admin", "--ttl", "1h")
	require.NoError(t, err)
	token := strings.TrimSpace(out)
	require.NotEmpty(t, token)

	authenticator, err := auth.NewAuthenticator(auth.Config{SigningKey: testSigningKey}, zerolog.Nop())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	id, err := authenticator.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, "ops", id.Subject)
	assert.True(t, id.HasRole("admin"))
}

func TestToken_Errors(t *testing.T) {
	noKey := writeConfig(t, "https://example.test/", "")
	_, err := execute(t, "--config", noKey, "token", "--subject", "ops")
	assert.Error(t, err, "no signing key configured")

	withKey := writeConfig(t, "https://example.test/", "auth:\n  signing_key: "+testSigningKey+"\n")
	_, err = execute(t, "--config", withKey, "token")
	assert.Error(t, err, "subject is required")
}

func TestRoot_BadConfig(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "info")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
}

func TestServe(t *testing.T) {
	up := newUpstream(t, `[{"id":1}]`)
	path := writeConfig(t, up.server.URL+"/", "auth:\n  signing_key: "+testSigningKey+"\n")
	cfg, err := config.Load(path, func(string) (string, bool) { return "", false })
	require.NoError(t, err)

	a := &app{version: "test", cfg: cfg, logger: zerolog.Nop()}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, started) }()

	var port string
	select {
	case port = <-started:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://127.0.0.1:" + port + "/api/data")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), up.calls.Load())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServe_RequiresSigningKey(t *testing.T) {
	a := &app{cfg: config.Default(), logger: zerolog.Nop()}
	err := a.serve(context.Background(), nil)
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(microservice.BaseConfig{LogLevel: "warn", LogFormat: "json", ServiceName: "svc"}, false, &buf)
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"message":"shown"`)
	assert.Contains(t, out, `"service":"svc"`)

	buf.Reset()
	logger = newLogger(microservice.BaseConfig{LogLevel: "warn", LogFormat: "json"}, true, &buf)
	logger.Debug().Msg("debugging")
	assert.Contains(t, buf.String(), "debugging")
	assert.NotContains(t, buf.String(), `"message"`, "debug switches to console output")
}
