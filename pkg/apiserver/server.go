// Package apiserver exposes the cached data over HTTP: a public JSON read
// endpoint, a privileged refresh endpoint, an admin page and an embeddable widget.
package apiserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/illmade-knight/go-apicache/pkg/auth"
	"github.com/illmade-knight/go-apicache/pkg/coordinator"
	"github.com/illmade-knight/go-apicache/pkg/microservice"
	"github.com/illmade-knight/go-apicache/pkg/render"
	"github.com/illmade-knight/go-apicache/pkg/types"
	"github.com/rs/zerolog"
)

// TimestampLayout is the format of the timestamp field in JSON responses.
const TimestampLayout = "2006-01-02 15:04:05"

// DataService is what the server needs from the coordinator.
type DataService interface {
	GetData(ctx context.Context, force bool) (types.Payload, error)
	GetCacheInfo(ctx context.Context) coordinator.CacheInfo
	TTL() time.Duration
}

// Config holds the values shown on the admin page.
type Config struct {
	HTTPPort   string
	Endpoint   string
	CLICommand string
}

// Server wires the handlers onto a BaseServer.
type Server struct {
	*microservice.BaseServer
	data     DataService
	auth     *auth.Authenticator
	renderer *render.Renderer
	cfg      Config
	logger   zerolog.Logger
	now      func() time.Time
}

// Option customises a Server.
type Option func(*Server)

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		if h != nil {
			s.Mux().Handle("GET /metrics", h)
		}
	}
}

// WithClock replaces the time source used for response timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		s.now = clock
	}
}

// NewServer creates the HTTP server. It does not start listening.
func NewServer(
	cfg Config,
	data DataService,
	authenticator *auth.Authenticator,
	logger zerolog.Logger,
	opts ...Option,
) (*Server, error) {
	if data == nil || authenticator == nil {
		return nil, errors.New("data service and authenticator cannot be nil")
	}
	renderer, err := render.NewRenderer()
	if err != nil {
		return nil, err
	}
	if cfg.CLICommand == "" {
		cfg.CLICommand = "apicache refresh"
	}

	s := &Server{
		BaseServer: microservice.NewBaseServer(logger, cfg.HTTPPort),
		data:       data,
		auth:       authenticator,
		renderer:   renderer,
		cfg:        cfg,
		logger:     logger.With().Str("component", "APIServer").Logger(),
		now:        time.Now,
	}
	s.registerHandlers()
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Server) registerHandlers() {
	mux := s.Mux()
	requireAdminJSON := s.auth.RequireAdmin(s.denyJSON)
	requireAdminHTML := s.auth.RequireAdmin(s.denyHTML)

	mux.HandleFunc("GET /api/data", s.handleGetData)
	mux.Handle("POST /api/refresh", requireAdminJSON(http.HandlerFunc(s.handleRefresh)))
	mux.Handle("GET /api/nonce", requireAdminJSON(http.HandlerFunc(s.handleNonce)))
	mux.Handle("GET /admin", requireAdminHTML(http.HandlerFunc(s.handleAdmin)))
	mux.HandleFunc("POST /admin/login", s.handleLogin)
	mux.HandleFunc("POST /admin/logout", s.handleLogout)
	mux.HandleFunc("GET /widget", s.handleWidget)
}
