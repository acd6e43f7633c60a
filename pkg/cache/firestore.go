package cache

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds configuration for the Firestore-backed store.
type FirestoreConfig struct {
	ProjectID      string `yaml:"project_id"`
	CollectionName string `yaml:"collection"`
}

// firestoreDoc is the document layout. PurgeAt can be targeted by a Firestore
// TTL policy so that documents disappear once the retention window has passed.
// It is nil when the store keeps entries forever.
type firestoreDoc struct {
	Value    []byte     `firestore:"value"`
	StoredAt time.Time  `firestore:"stored_at"`
	TTLNanos int64      `firestore:"ttl_ns"`
	PurgeAt  *time.Time `firestore:"purge_at,omitempty"`
}

// FirestoreStore implements Store with one document per key.
// It is suitable for small deployments where a dedicated Redis instance is overkill.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	retention  time.Duration
	logger     zerolog.Logger
	now        Clock
}

// NewFirestoreStore creates a new FirestoreStore.
// The Firestore client's lifecycle is managed by the caller.
func NewFirestoreStore(
	cfg *FirestoreConfig,
	client *firestore.Client,
	retention time.Duration,
	logger zerolog.Logger,
) (*FirestoreStore, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client cannot be nil: %w", ErrNilClient)
	}

	logger.Info().Str("project_id", cfg.ProjectID).Str("collection", cfg.CollectionName).Msg("FirestoreStore initialized.")

	return &FirestoreStore{
		client:     client,
		collection: cfg.CollectionName,
		retention:  retention,
		logger:     logger.With().Str("component", "FirestoreStore").Logger(),
		now:        time.Now,
	}, nil
}

// Get retrieves an unexpired entry.
func (s *FirestoreStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	e, ok, err := s.GetStale(ctx, key)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	if e.IsExpired(s.now()) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// GetStale retrieves a document and maps it to an Entry, ignoring logical expiry.
func (s *FirestoreStore) GetStale(ctx context.Context, key string) (Entry, bool, error) {
	if err := ValidateKey(key); err != nil {
		return Entry{}, false, err
	}

	docSnap, err := s.client.Collection(s.collection).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Entry{}, false, nil
		}
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to get document from Firestore.")
		return Entry{}, false, fmt.Errorf("firestore get for %s: %w", key, err)
	}

	var doc firestoreDoc
	if err := docSnap.DataTo(&doc); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to map Firestore document data.")
		return Entry{}, false, fmt.Errorf("firestore DataTo for %s: %w", key, err)
	}

	// Firestore TTL deletion is best-effort, so enforce the retention window here too.
	if doc.PurgeAt != nil && s.now().After(*doc.PurgeAt) {
		return Entry{}, false, nil
	}

	return Entry{Value: doc.Value, StoredAt: doc.StoredAt, TTL: time.Duration(doc.TTLNanos)}, true, nil
}

// Set creates or overwrites the document for key.
func (s *FirestoreStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	storedAt := s.now()
	doc := firestoreDoc{
		Value:    value,
		StoredAt: storedAt,
		TTLNanos: int64(ttl),
	}
	if s.retention > KeepForever {
		purgeAt := storedAt.Add(ttl + s.retention)
		doc.PurgeAt = &purgeAt
	}
	if _, err := s.client.Collection(s.collection).Doc(key).Set(ctx, doc); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to write document to Firestore.")
		return fmt.Errorf("firestore set for %s: %w", key, err)
	}
	s.logger.Debug().Str("key", key).Msg("Successfully wrote data to Firestore.")
	return nil
}

// Delete removes the document from Firestore.
func (s *FirestoreStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if _, err := s.client.Collection(s.collection).Doc(key).Delete(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return fmt.Errorf("firestore delete failed for key %s: %w", key, err)
	}
	return nil
}

// GetTimestamp returns when an unexpired entry was stored.
func (s *FirestoreStore) GetTimestamp(ctx context.Context, key string) (time.Time, bool, error) {
	e, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return e.StoredAt, true, nil
}

// Close is a no-op as the Firestore client's lifecycle is managed externally.
func (s *FirestoreStore) Close() error {
	s.logger.Info().Msg("FirestoreStore does not close the injected Firestore client.")
	return nil
}

var _ Store = (*FirestoreStore)(nil)
