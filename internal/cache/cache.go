package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// KeyPrefix namespaces every key this service writes
const KeyPrefix = "truthguard:v1:"

// Cache defines the interface for caching
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// CacheKey generates a cache key for a namespace and its identifying parts
func CacheKey(namespace string, parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return KeyPrefix + namespace + ":" + hex.EncodeToString(hash[:])
}
