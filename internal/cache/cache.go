// Package cache holds small in-process caches with size and TTL bounds.
package cache

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

var _ Cache[struct{}] = (*LRUCache[struct{}])(nil)
