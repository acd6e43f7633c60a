// Package upstream performs the outbound request to the data API and validates
// what comes back.
package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/illmade-knight/go-apicache/pkg/types"
	"github.com/rs/zerolog"
)

// Defaults matching the production endpoint.
const (
	DefaultEndpoint     = "https://miusage.com/v1/challenge/1/"
	DefaultTimeout      = 15 * time.Second
	DefaultMaxBodyBytes = 10 << 20
)

// Config holds configuration for the upstream client.
type Config struct {
	Endpoint     string        `yaml:"endpoint"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Endpoint:     DefaultEndpoint,
		Timeout:      DefaultTimeout,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// Fetcher retrieves the current payload from the upstream API.
// A non-nil error is always an *Error.
type Fetcher interface {
	Fetch(ctx context.Context) (types.Payload, error)
}

// Client is the HTTP implementation of Fetcher. It never retries.
type Client struct {
	endpoint     string
	maxBodyBytes int64
	httpClient   *http.Client
	logger       zerolog.Logger
}

// NewClient creates an upstream client. If httpClient is nil a client with the
// configured timeout and certificate verification enabled is built.
func NewClient(cfg Config, httpClient *http.Client, logger zerolog.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("upstream endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
				TLSHandshakeTimeout: cfg.Timeout,
			},
		}
	}

	return &Client{
		endpoint:     cfg.Endpoint,
		maxBodyBytes: cfg.MaxBodyBytes,
		httpClient:   httpClient,
		logger:       logger.With().Str("component", "UpstreamClient").Str("endpoint", cfg.Endpoint).Logger(),
	}, nil
}

// Fetch issues a GET to the endpoint and returns the decoded aggregate unmodified.
// Numbers are returned as json.Number.
func (c *Client) Fetch(ctx context.Context) (types.Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, transportError(err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Msg("Upstream request failed.")
		return nil, transportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		c.logger.Warn().Int("status", resp.StatusCode).Msg("Upstream returned non-200 status.")
		return nil, statusError(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to read upstream response body.")
		return nil, transportError(err)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return nil, parseError(fmt.Errorf("response body exceeds %d bytes", c.maxBodyBytes))
	}

	payload, err := decode(body)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Upstream response failed validation.")
		return nil, err
	}

	c.logger.Debug().Dur("elapsed", time.Since(start)).Int("items", types.Len(payload)).Msg("Fetched upstream payload.")
	return payload, nil
}

// decode parses body and checks that the top level is an object or array.
func decode(body []byte) (types.Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, parseError(err)
	}
	// Trailing data after the first value is malformed.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected data after top-level value")
		}
		return nil, parseError(err)
	}
	if !types.IsAggregate(v) {
		return nil, schemaError()
	}
	return v, nil
}

var _ Fetcher = (*Client)(nil)
