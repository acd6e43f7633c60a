package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/illmade-knight/go-apicache/pkg/cache"
	"github.com/illmade-knight/go-apicache/pkg/coordinator"
	"github.com/illmade-knight/go-apicache/pkg/upstream"
)

// services holds the pieces built from configuration for one command.
type services struct {
	store       cache.Store
	coordinator *coordinator.Coordinator
}

// Close releases the store.
func (s *services) Close() error {
	return s.store.Close()
}

// newServices builds the store, the upstream client and the coordinator.
// metrics may be nil.
func (a *app) newServices(ctx context.Context, metrics *coordinator.Metrics) (*services, error) {
	store, err := cache.NewStore(ctx, &a.cfg.Cache.Store, a.cfg.CredentialsFile, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache store: %w", err)
	}

	client, err := upstream.NewClient(a.cfg.Upstream, nil, a.logger)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}

	var opts []coordinator.Option
	if metrics != nil {
		opts = append(opts, coordinator.WithMetrics(metrics))
	}
	coord, err := coordinator.New(a.cfg.Cache.Policy, store, client, a.logger, opts...)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}

	a.logger.Debug().
		Str("backend", a.cfg.Cache.Store.Backend).
		Str("endpoint", a.cfg.Upstream.Endpoint).
		Msg("Services initialised.")
	return &services{store: store, coordinator: coord}, nil
}
