package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// entryFileExtension is the file extension used for stored entries.
const entryFileExtension = ".json"

// FileConfig holds configuration for the file-backed store.
type FileConfig struct {
	Dir string `yaml:"dir"`
}

// FileStore keeps each entry as a JSON file in a directory.
// Writes go to a temporary file and are renamed into place, so a reader never
// sees a half-written entry.
type FileStore struct {
	dir       string
	retention time.Duration
	logger    zerolog.Logger
	now       Clock

	// mu protects concurrent access to file operations within this process.
	mu sync.RWMutex
}

// NewFileStore creates a file-backed store, creating the directory if needed.
func NewFileStore(cfg *FileConfig, retention time.Duration, logger zerolog.Logger) (*FileStore, error) {
	if cfg == nil || cfg.Dir == "" {
		return nil, errors.New("cache directory cannot be empty")
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	logger.Info().Str("dir", cfg.Dir).Msg("FileStore initialized.")

	return &FileStore{
		dir:       cfg.Dir,
		retention: retention,
		logger:    logger.With().Str("component", "FileStore").Logger(),
		now:       time.Now,
	}, nil
}

// WithClock replaces the store's time source.
func (s *FileStore) WithClock(clock Clock) *FileStore {
	s.now = clock
	return s
}

// Get retrieves an unexpired entry.
func (s *FileStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	e, ok, err := s.GetStale(ctx, key)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	if e.IsExpired(s.now()) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

// GetStale reads an entry from disk, ignoring logical expiry.
func (s *FileStore) GetStale(_ context.Context, key string) (Entry, bool, error) {
	if err := ValidateKey(key); err != nil {
		return Entry{}, false, err
	}

	path := s.keyToFilePath(key)

	s.mu.RLock()
	data, err := os.ReadFile(path)
	s.mu.RUnlock()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("failed to read cache file for %s: %w", key, err)
	}

	e, err := unmarshalEntry(data)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Failed to unmarshal cache file.")
		return Entry{}, false, fmt.Errorf("failed to unmarshal cache entry for %s: %w", key, err)
	}

	if !retained(e, s.now(), s.retention) {
		s.removeIfUnchanged(path, e.StoredAt)
		return Entry{}, false, nil
	}
	return e, true, nil
}

// removeIfUnchanged deletes the file at path only if it still holds the entry
// stored at storedAt. Another writer may have replaced it since it was read.
func (s *FileStore) removeIfUnchanged(path string, storedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	cur, err := unmarshalEntry(data)
	if err != nil || !cur.StoredAt.Equal(storedAt) {
		return
	}
	_ = os.Remove(path)
}

// Set writes an entry atomically via a temporary file and rename.
func (s *FileStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	data, err := marshalEntry(Entry{Value: value, StoredAt: s.now(), TTL: ttl})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry for %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Each write gets its own temporary file so that writers in other
	// processes sharing the directory never rename each other's files.
	f, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", key, err)
	}
	tmp := f.Name()
	_, err = f.Write(data)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write cache file for %s: %w", key, err)
	}
	if err := os.Rename(tmp, s.keyToFilePath(key)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename cache file for %s: %w", key, err)
	}

	s.logger.Debug().Str("key", key).Msg("Stored entry on disk.")
	return nil
}

// Delete removes the entry file; a missing file is not an error.
func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.keyToFilePath(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete cache file for %s: %w", key, err)
	}
	return nil
}

// GetTimestamp returns when an unexpired entry was stored.
func (s *FileStore) GetTimestamp(ctx context.Context, key string) (time.Time, bool, error) {
	e, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return e.StoredAt, true, nil
}

// Close is a no-op; there are no open handles between calls.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) keyToFilePath(key string) string {
	return filepath.Join(s.dir, key+entryFileExtension)
}

var _ Store = (*FileStore)(nil)
