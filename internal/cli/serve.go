package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/illmade-knight/go-apicache/pkg/apiserver"
	"github.com/illmade-knight/go-apicache/pkg/auth"
	"github.com/illmade-knight/go-apicache/pkg/coordinator"
	"github.com/illmade-knight/go-apicache/pkg/telemetry"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, nil)
		},
	}
}

// serve runs until ctx is done. started, if not nil, receives the listening
// port once the server is up.
func (a *app) serve(ctx context.Context, started chan<- string) error {
	if a.cfg.Auth.SigningKey == "" {
		return errors.New("auth.signing_key is required to serve")
	}

	provider, err := telemetry.NewProvider(ctx, a.cfg.Metrics, a.cfg.ServiceName, a.version)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if serr := provider.Shutdown(shutdownCtx); serr != nil {
			a.logger.Error().Err(serr).Msg("Failed to shut down metrics provider.")
		}
	}()

	metrics, err := coordinator.NewMetrics(provider.Meter())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	svc, err := a.newServices(ctx, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil {
			a.logger.Error().Err(cerr).Msg("Failed to close cache store.")
		}
	}()

	authenticator, err := auth.NewAuthenticator(a.cfg.Auth, a.logger)
	if err != nil {
		return err
	}

	server, err := apiserver.NewServer(
		apiserver.Config{
			HTTPPort: a.cfg.HTTPPort,
			Endpoint: a.cfg.Upstream.Endpoint,
		},
		svc.coordinator,
		authenticator,
		a.logger,
		apiserver.WithMetricsHandler(provider.Handler()),
	)
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}
	if started != nil {
		started <- server.GetHTTPPort()
	}

	<-ctx.Done()
	a.logger.Info().Msg("Shutdown signal received.")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
