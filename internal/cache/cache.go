// Package cache provides the bounded lookup memo used by batch operations.
package cache

// Cache defines a generic cache interface
type Cache[K comparable, V any] interface {
	// Get retrieves a value from the cache
	Get(key K) (V, bool)

	// Set stores a value in the cache
	Set(key K, data V)

	// Delete removes a key from the cache
	Delete(key K)

	// Size returns the current number of items in the cache
	Size() int
}

// Stats counts cache activity since creation.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// HitRatio is hits over lookups, or 0 before the first lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// OwnedKey identifies an owner-scoped entity in a memo.
type OwnedKey struct {
	OwnerID int64
	ID      int64
}

var _ Cache[OwnedKey, struct{}] = (*LRUCache[OwnedKey, struct{}])(nil)
