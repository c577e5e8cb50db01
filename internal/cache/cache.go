package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/ppiankov/policygraph/internal/model"
)

// KeyPrefix namespaces every key; bump the version when the cached payload changes shape
const KeyPrefix = "policygraph:v1:"

// Cache defines the interface for caching
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key hashes the given parts into a single cache key. Parts are
// NUL-separated so ("ab", "c") and ("a", "bc") do not collide.
func Key(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return KeyPrefix + hex.EncodeToString(hash[:])
}

// FromConfig builds the layered cache described by cfg, or returns nil
// when caching is disabled
func FromConfig(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Dir == "" {
		return NewMemoryCache(cfg.MemoryTTL, 10*time.Minute)
	}
	return NewLayeredCache(cfg.MemoryTTL, cfg.Dir, cfg.DiskTTL)
}
