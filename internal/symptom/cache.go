package symptom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"symptom-interview/internal/interview"
	"symptom-interview/internal/platform/cache"
)

// CachedCatalog is a read-through cache in front of a Catalog. Cache faults
// are logged and fall through to the wrapped catalog.
type CachedCatalog struct {
	next   Catalog
	cache  cache.Cache
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedCatalog(next Catalog, c cache.Cache, ttl time.Duration, logger zerolog.Logger) *CachedCatalog {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedCatalog{next: next, cache: c, ttl: ttl, logger: logger}
}

func (c *CachedCatalog) ListSymptoms(ctx context.Context, age int) ([]interview.Symptom, error) {
	key := fmt.Sprintf("symptoms:list:age:%d", age)
	return c.readThrough(ctx, key, func() ([]interview.Symptom, error) {
		return c.next.ListSymptoms(ctx, age)
	})
}

func (c *CachedCatalog) SuggestSymptoms(ctx context.Context, query string, age int) ([]interview.Symptom, error) {
	q := url.QueryEscape(strings.ToLower(strings.TrimSpace(query)))
	key := fmt.Sprintf("symptoms:suggest:age:%d:q:%s", age, q)
	return c.readThrough(ctx, key, func() ([]interview.Symptom, error) {
		return c.next.SuggestSymptoms(ctx, query, age)
	})
}

func (c *CachedCatalog) readThrough(ctx context.Context, key string, load func() ([]interview.Symptom, error)) ([]interview.Symptom, error) {
	raw, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var list []interview.Symptom
		if err := json.Unmarshal(raw, &list); err == nil {
			return list, nil
		}
		c.logger.Warn().Str("key", key).Msg("discarding corrupt cache entry")
	case !errors.Is(err, cache.ErrMiss):
		c.logger.Warn().Err(err).Str("key", key).Msg("symptom cache read failed")
	}

	list, err := load()
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(list); err == nil {
		if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("symptom cache write failed")
		}
	}
	return list, nil
}
