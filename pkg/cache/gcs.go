package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
)

// GCSConfig holds configuration for the GCS-backed store.
type GCSConfig struct {
	BucketName   string `yaml:"bucket"`
	ObjectPrefix string `yaml:"prefix"`
}

// GCSStore implements Store with one JSON object per key in a bucket.
// Object writes are atomic in GCS, so a reader sees either the old or the new entry.
// Objects are not physically expired; a bucket lifecycle rule can be used for that,
// and reads past the retention window are treated as misses.
type GCSStore struct {
	client    GCSClient
	config    GCSConfig
	retention time.Duration
	logger    zerolog.Logger
	now       Clock
}

// NewGCSStore creates a new store on top of a GCS client.
func NewGCSStore(
	gcsClient GCSClient,
	config GCSConfig,
	retention time.Duration,
	logger zerolog.Logger,
) (*GCSStore, error) {
	if gcsClient == nil {
		return nil, fmt.Errorf("GCS client cannot be nil: %w", ErrNilClient)
	}
	if config.BucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}
	return &GCSStore{
		client:    gcsClient,
		config:    config,
		retention: retention,
		logger:    logger.With().Str("component", "GCSStore").Logger(),
		now:       time.Now,
	}, nil
}

// WithClock replaces the store's time source.
func (s *GCSStore) WithClock(clock Clock) *GCSStore {
	s.now = clock
	return s
}

// Get retrieves an unexpired entry.
func (s *GCSStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	e, ok, err := s.GetStale(ctx, key)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	if e.IsExpired(s.now()) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// GetStale reads the object for key, ignoring logical expiry.
func (s *GCSStore) GetStale(ctx context.Context, key string) (Entry, bool, error) {
	if err := ValidateKey(key); err != nil {
		return Entry{}, false, err
	}

	r, err := s.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return Entry{}, false, nil
		}
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to open GCS object.")
		return Entry{}, false, fmt.Errorf("gcs read for %s: %w", key, err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return Entry{}, false, fmt.Errorf("gcs read for %s: %w", key, err)
	}

	e, err := unmarshalEntry(data)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to unmarshal GCS object.")
		return Entry{}, false, fmt.Errorf("failed to unmarshal entry for %s: %w", key, err)
	}
	if !retained(e, s.now(), s.retention) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Set uploads the entry envelope, replacing any existing object.
func (s *GCSStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	data, err := marshalEntry(Entry{Value: value, StoredAt: s.now(), TTL: ttl})
	if err != nil {
		return fmt.Errorf("failed to marshal entry for %s: %w", key, err)
	}

	w := s.object(key).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write GCS object for %s: %w", key, err)
	}
	// The upload is only committed on Close.
	if err := w.Close(); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to commit GCS object.")
		return fmt.Errorf("failed to close GCS writer for %s: %w", key, err)
	}
	s.logger.Debug().Str("key", key).Msg("Successfully wrote GCS object.")
	return nil
}

// Delete removes the object; a missing object is not an error.
func (s *GCSStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := s.object(key).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete failed for key %s: %w", key, err)
	}
	return nil
}

// GetTimestamp returns when an unexpired entry was stored.
func (s *GCSStore) GetTimestamp(ctx context.Context, key string) (time.Time, bool, error) {
	e, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return e.StoredAt, true, nil
}

// Close is a no-op as the GCS client's lifecycle is managed externally.
func (s *GCSStore) Close() error {
	return nil
}

func (s *GCSStore) object(key string) GCSObjectHandle {
	return s.client.Bucket(s.config.BucketName).Object(path.Join(s.config.ObjectPrefix, key+entryFileExtension))
}

var _ Store = (*GCSStore)(nil)
