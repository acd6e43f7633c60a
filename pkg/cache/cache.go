// Package cache provides key/value stores with per-entry expiration used to
// hold upstream payloads and control flags.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"
)

// Sentinel errors for store operations.
var (
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrNilClient  = errors.New("cache: client cannot be nil")
)

// Store is a key/value store with per-entry expiration and timestamp retrieval.
//
// Entries expire logically after their TTL: Get and GetTimestamp treat them as
// missing. Implementations keep expired entries around for a retention window
// so that GetStale can still read them back; this is what stale fallback relies on.
// A retention of KeepForever keeps them until they are replaced or deleted.
// All implementations must be safe for concurrent use.
type Store interface {
	// Get returns the entry for key if present and not expired.
	Get(ctx context.Context, key string) (Entry, bool, error)
	// GetStale returns the entry for key if present, ignoring logical expiry.
	GetStale(ctx context.Context, key string) (Entry, bool, error)
	// Set stores value under key, replacing any prior entry, expiring ttl from now.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// GetTimestamp returns when the unexpired entry for key was stored.
	GetTimestamp(ctx context.Context, key string) (time.Time, bool, error)
	io.Closer
}

// Entry is a stored value together with the moment it was written and its TTL.
// The value and its timestamp always travel together.
type Entry struct {
	Value    []byte        `json:"value"`
	StoredAt time.Time     `json:"stored_at"`
	TTL      time.Duration `json:"ttl"`
}

// ExpiresAt returns the moment the entry stops being valid.
func (e Entry) ExpiresAt() time.Time {
	return e.StoredAt.Add(e.TTL)
}

// IsExpired reports whether the entry is no longer valid at now.
func (e Entry) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt())
}

// Age returns how long ago the entry was stored, relative to now.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// KeepForever is the retention value that never purges expired entries.
const KeepForever time.Duration = 0

// retained reports whether an expired entry is still inside the retention
// window at now.
func retained(e Entry, now time.Time, retention time.Duration) bool {
	return retention <= KeepForever || !now.After(e.ExpiresAt().Add(retention))
}

// Clock returns the current time. Stores accept one so tests can control expiry.
type Clock func() time.Time

// ValidateKey checks that a key is usable across every backend.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" || strings.ContainsAny(key, "\n\r/") {
		return ErrInvalidKey
	}
	return nil
}

func marshalEntry(e Entry) ([]byte, error) {
	return json.Marshal(e)
}

func unmarshalEntry(data []byte) (Entry, error) {
	var e Entry
	err := json.Unmarshal(data, &e)
	return e, err
}
