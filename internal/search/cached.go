package search

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ppiankov/truthguard/internal/cache"
	"github.com/ppiankov/truthguard/internal/model"
)

// Cached memoizes evidence per (query, maxResults). Failures are never cached.
type Cached struct {
	next  Source
	cache cache.Cache
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCached wraps a source with a cache
func NewCached(next Source, c cache.Cache, ttl time.Duration, log zerolog.Logger) *Cached {
	return &Cached{next: next, cache: c, ttl: ttl, log: log}
}

// FetchEvidence serves from cache when possible
func (c *Cached) FetchEvidence(ctx context.Context, query string, maxResults int) ([]model.EvidenceItem, error) {
	key := cache.CacheKey("search", query, strconv.Itoa(maxResults))

	if data, ok := c.cache.Get(ctx, key); ok {
		var items []model.EvidenceItem
		if err := json.Unmarshal(data, &items); err == nil {
			c.log.Debug().Str("query", query).Int("results", len(items)).Msg("evidence cache hit")
			return items, nil
		}
	}

	items, err := c.next.FetchEvidence(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(items)
	if err == nil {
		err = c.cache.Set(ctx, key, data, c.ttl)
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("evidence cache write failed")
	}

	return items, nil
}
