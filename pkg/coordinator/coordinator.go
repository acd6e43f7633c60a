// Package coordinator decides, for every data request, whether to serve the
// cached payload, fetch a fresh one, or fall back to stale data when the
// upstream fails. It also owns the one-shot force-refresh flag.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-apicache/pkg/cache"
	"github.com/illmade-knight/go-apicache/pkg/types"
	"github.com/illmade-knight/go-apicache/pkg/upstream"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Defaults for the cache window and the force-refresh flag.
const (
	DefaultKeyPrefix = "apicache"
	DefaultTTL       = time.Hour
	DefaultFlagTTL   = time.Minute
)

// Config holds the caching policy.
type Config struct {
	// KeyPrefix namespaces the payload and flag slots in the store.
	KeyPrefix string `yaml:"key_prefix"`
	// TTL is how long a fetched payload is served without contacting the upstream.
	TTL time.Duration `yaml:"ttl"`
	// FlagTTL bounds how long an unconsumed force-refresh request stays pending.
	FlagTTL time.Duration `yaml:"flag_ttl"`
	// SingleFlight merges concurrent cache misses into one upstream call.
	SingleFlight bool `yaml:"single_flight"`
}

// DefaultConfig returns the production policy.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:    DefaultKeyPrefix,
		TTL:          DefaultTTL,
		FlagTTL:      DefaultFlagTTL,
		SingleFlight: true,
	}
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithClock replaces the coordinator's time source.
func WithClock(clock cache.Clock) Option {
	return func(c *Coordinator) {
		c.now = clock
	}
}

// WithMetrics records activity on m instead of discarding it.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// Coordinator implements the caching and refresh policy over a Store and a Fetcher.
// One instance is built per process and shared by every adapter.
type Coordinator struct {
	store      cache.Store
	fetcher    upstream.Fetcher
	cfg        Config
	payloadKey string
	flagKey    string
	logger     zerolog.Logger
	metrics    *Metrics
	now        cache.Clock
	group      singleflight.Group
}

// New creates a Coordinator.
func New(
	cfg Config,
	store cache.Store,
	fetcher upstream.Fetcher,
	logger zerolog.Logger,
	opts ...Option,
) (*Coordinator, error) {
	if store == nil || fetcher == nil {
		return nil, errors.New("store and fetcher cannot be nil")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive, got %s", cfg.TTL)
	}
	if cfg.FlagTTL <= 0 {
		return nil, fmt.Errorf("flag ttl must be positive, got %s", cfg.FlagTTL)
	}

	c := &Coordinator{
		store:      store,
		fetcher:    fetcher,
		cfg:        cfg,
		payloadKey: cfg.KeyPrefix + "_data",
		flagKey:    cfg.KeyPrefix + "_force_refresh",
		logger:     logger.With().Str("component", "DataCoordinator").Logger(),
		metrics:    noopMetrics(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the configured cache window.
func (c *Coordinator) TTL() time.Duration {
	return c.cfg.TTL
}

// GetData returns the payload, contacting the upstream only when the cache is
// not valid or a refresh was forced (by argument or by the pending flag).
//
// A failed fetch is answered with whatever payload was stored before, however
// old; only when nothing was ever stored is the fetch error returned, unchanged.
// GetData may block for up to the upstream timeout. The caller's cancellation
// does not abort an in-flight fetch.
func (c *Coordinator) GetData(ctx context.Context, force bool) (types.Payload, error) {
	ctx = context.WithoutCancel(ctx)

	shouldForce := force || c.flagPending(ctx)

	if !shouldForce {
		if payload, ok := c.getCachedData(ctx); ok {
			c.metrics.recordRequest(ctx, outcomeHit, false)
			return payload, nil
		}
	}

	if shouldForce {
		// Consumed before fetching, so a failed fetch cannot leave it set.
		c.clearFlag(ctx)
	}

	if !c.cfg.SingleFlight || shouldForce {
		return c.fetchAndStore(ctx, shouldForce)
	}

	v, err, shared := c.group.Do(c.payloadKey, func() (any, error) {
		// Another caller may have refreshed the cache while we were queued.
		if payload, ok := c.getCachedData(ctx); ok {
			return payload, nil
		}
		return c.fetchAndStore(ctx, false)
	})
	if shared {
		c.logger.Debug().Msg("Joined an in-flight upstream fetch.")
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// fetchAndStore calls the upstream and either caches the new payload or falls
// back to the stale one.
func (c *Coordinator) fetchAndStore(ctx context.Context, forced bool) (types.Payload, error) {
	start := time.Now()
	payload, err := c.fetcher.Fetch(ctx)
	c.metrics.recordFetch(ctx, time.Since(start), err)

	if err != nil {
		if stale, ok := c.getStaleData(ctx); ok {
			c.logger.Warn().Err(err).Str("kind", upstream.KindOf(err).String()).
				Msg("API call failed, returning stale cache.")
			c.metrics.recordRequest(ctx, outcomeFallback, forced)
			return stale, nil
		}
		c.logger.Error().Err(err).Msg("API call failed and no cached data is available.")
		c.metrics.recordRequest(ctx, outcomeFailed, forced)
		return nil, err
	}

	c.storeData(ctx, payload)
	c.metrics.recordRequest(ctx, outcomeFresh, forced)
	return payload, nil
}

// getCachedData returns the payload only while it is within the cache window.
func (c *Coordinator) getCachedData(ctx context.Context) (types.Payload, bool) {
	e, ok, err := c.store.Get(ctx, c.payloadKey)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to read cache; treating as a miss.")
		return nil, false
	}
	if !ok || !c.isValid(e) {
		return nil, false
	}
	return c.decodeEntry(e)
}

// getStaleData returns any stored payload, ignoring its age.
func (c *Coordinator) getStaleData(ctx context.Context) (types.Payload, bool) {
	e, ok, err := c.store.GetStale(ctx, c.payloadKey)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to read stale cache.")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return c.decodeEntry(e)
}

func (c *Coordinator) decodeEntry(e cache.Entry) (types.Payload, bool) {
	payload, err := types.Decode(e.Value)
	if err != nil {
		c.logger.Error().Err(err).Msg("Cached payload is corrupt; ignoring it.")
		return nil, false
	}
	return payload, true
}

// storeData writes the payload; its timestamp is stored in the same entry.
func (c *Coordinator) storeData(ctx context.Context, payload types.Payload) {
	data, err := types.Encode(payload)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to encode payload for caching.")
		return
	}
	if err := c.store.Set(ctx, c.payloadKey, data, c.cfg.TTL); err != nil {
		c.logger.Error().Err(err).Msg("Failed to write payload to cache.")
		return
	}
	c.logger.Info().Int("items", types.Len(payload)).Dur("ttl", c.cfg.TTL).Msg("Cached fresh payload.")
}

func (c *Coordinator) isValid(e cache.Entry) bool {
	return c.age(e) < c.cfg.TTL
}

func (c *Coordinator) age(e cache.Entry) time.Duration {
	age := e.Age(c.now())
	if age < 0 {
		// Another process with a clock ahead of ours wrote the entry.
		return 0
	}
	return age
}

func (c *Coordinator) flagPending(ctx context.Context) bool {
	_, ok, err := c.store.Get(ctx, c.flagKey)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to read force-refresh flag.")
		return false
	}
	return ok
}

func (c *Coordinator) clearFlag(ctx context.Context) {
	if err := c.store.Delete(ctx, c.flagKey); err != nil {
		c.logger.Error().Err(err).Msg("Failed to clear force-refresh flag.")
	}
}

// MarkForRefresh makes the next GetData bypass the cache once. The flag
// expires on its own after the flag TTL if nobody reads data.
func (c *Coordinator) MarkForRefresh(ctx context.Context) bool {
	if err := c.store.Set(ctx, c.flagKey, []byte("true"), c.cfg.FlagTTL); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set force-refresh flag.")
		return false
	}
	c.logger.Info().Dur("flag_ttl", c.cfg.FlagTTL).Msg("Marked data for refresh.")
	return true
}

// ClearCache removes the payload and the force-refresh flag.
func (c *Coordinator) ClearCache(ctx context.Context) error {
	var errs []error
	for _, key := range []string{c.payloadKey, c.flagKey} {
		if err := c.store.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", key, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	c.logger.Info().Msg("Cache cleared.")
	return nil
}

// GetCacheInfo describes the stored payload without changing anything.
func (c *Coordinator) GetCacheInfo(ctx context.Context) CacheInfo {
	e, ok, err := c.store.GetStale(ctx, c.payloadKey)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to read cache info.")
		return CacheInfo{}
	}
	if !ok {
		return CacheInfo{}
	}
	return newCacheInfo(e.StoredAt, c.age(e), c.cfg.TTL)
}
