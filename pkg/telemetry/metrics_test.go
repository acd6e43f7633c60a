package telemetry_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/illmade-knight/go-apicache/pkg/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider_Prometheus(t *testing.T) {
	ctx := context.Background()
	p, err := telemetry.NewProvider(ctx, telemetry.Config{Enabled: true, Exporter: telemetry.ExporterPrometheus}, "apicache", "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	counter, err := p.Meter().Int64Counter("test.hits")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	require.NotNil(t, p.Handler())
	server := httptest.NewServer(p.Handler())
	t.Cleanup(server.Close)

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "test_hits_total")
}

func TestNewProvider_Disabled(t *testing.T) {
	p, err := telemetry.NewProvider(context.Background(), telemetry.Config{Enabled: false}, "apicache", "test")
	require.NoError(t, err)
	assert.Nil(t, p.Handler())
	assert.NotNil(t, p.Meter())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProvider_UnknownExporter(t *testing.T) {
	_, err := telemetry.NewProvider(context.Background(), telemetry.Config{Enabled: true, Exporter: "carrier-pigeon"}, "apicache", "test")
	assert.Error(t, err)
}
