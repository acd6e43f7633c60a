package coordinator

import "time"

// CacheInfo describes the stored payload at the moment it was queried.
// It is derived on every call and never stored.
type CacheInfo struct {
	HasCache  bool
	Age       time.Duration
	IsValid   bool
	Timestamp time.Time
	ExpiresIn time.Duration
}

func newCacheInfo(storedAt time.Time, age, ttl time.Duration) CacheInfo {
	expiresIn := ttl - age
	if expiresIn < 0 {
		expiresIn = 0
	}
	return CacheInfo{
		HasCache:  true,
		Age:       age,
		IsValid:   age < ttl,
		Timestamp: storedAt,
		ExpiresIn: expiresIn,
	}
}

// AgeSeconds returns the age truncated to whole seconds, or 0 when nothing is cached.
func (i CacheInfo) AgeSeconds() int64 {
	if !i.HasCache {
		return 0
	}
	return int64(i.Age / time.Second)
}
