package cache

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// Supported backend names.
const (
	BackendMemory    = "memory"
	BackendFile      = "file"
	BackendRedis     = "redis"
	BackendFirestore = "firestore"
	BackendGCS       = "gcs"
)

// Config selects and configures a Store backend.
type Config struct {
	Backend        string          `yaml:"backend"`
	StaleRetention time.Duration   `yaml:"stale_retention"`
	File           FileConfig      `yaml:"file"`
	Redis          RedisConfig     `yaml:"redis"`
	Firestore      FirestoreConfig `yaml:"firestore"`
	GCS            GCSConfig       `yaml:"gcs"`
}

// closerFunc adapts a function to io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// ownedStore closes an underlying client the factory created alongside the store.
type ownedStore struct {
	Store
	client closerFunc
}

func (o ownedStore) Close() error {
	if err := o.Store.Close(); err != nil {
		return err
	}
	return o.client.Close()
}

// NewStore builds the Store named by cfg.Backend. Clients created here are
// closed when the returned Store is closed.
func NewStore(ctx context.Context, cfg *Config, credentialsFile string, logger zerolog.Logger) (Store, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	switch cfg.Backend {
	case BackendMemory, "":
		return NewInMemoryStore(cfg.StaleRetention), nil

	case BackendFile:
		return NewFileStore(&cfg.File, cfg.StaleRetention, logger)

	case BackendRedis:
		return NewRedisStore(ctx, &cfg.Redis, cfg.StaleRetention, logger)

	case BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.Firestore.ProjectID, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		s, err := NewFirestoreStore(&cfg.Firestore, client, cfg.StaleRetention, logger)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return ownedStore{Store: s, client: client.Close}, nil

	case BackendGCS:
		client, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		s, err := NewGCSStore(NewGCSClientAdapter(client), cfg.GCS, cfg.StaleRetention, logger)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return ownedStore{Store: s, client: client.Close}, nil

	default:
		return nil, fmt.Errorf("unknown cache backend: %q", cfg.Backend)
	}
}
