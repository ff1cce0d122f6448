package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/zuckermanai/zuckerman-sub001/internal/metrics"
)

// DefaultCacheEntries bounds the in-memory cache when no size is configured.
const DefaultCacheEntries = 50000

// CacheStore is a persistent second level behind the in-memory LRU.
type CacheStore interface {
	GetEmbedding(ctx context.Context, key string) (Vector, bool, error)
	PutEmbedding(ctx context.Context, key, model string, v Vector) error
}

// CacheKey is the hex sha256 of model and text.
func CacheKey(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// CachedEmbedder wraps an Embedder with an LRU cache keyed by (model, text).
// Concurrent misses for one key share a single provider call.
type CachedEmbedder struct {
	inner   Embedder
	lru     *lru.Cache[string, Vector]
	store   CacheStore
	group   singleflight.Group
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewCachedEmbedder creates the cache. store may be nil.
func NewCachedEmbedder(inner Embedder, maxEntries int, store CacheStore, m *metrics.Metrics, log *zap.Logger) (*CachedEmbedder, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	cache, err := lru.New[string, Vector](maxEntries)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = metrics.New()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedEmbedder{inner: inner, lru: cache, store: store, metrics: m, log: log}, nil
}

func (c *CachedEmbedder) Dims() int     { return c.inner.Dims() }
func (c *CachedEmbedder) Model() string { return c.inner.Model() }

// Len reports the number of in-memory entries.
func (c *CachedEmbedder) Len() int { return c.lru.Len() }

// Embed returns the cached vector for text, calling the provider on a miss.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	return c.GetEmbedding(ctx, text, c.inner.Model())
}

// GetEmbedding looks up (text, model). The provider is only consulted when
// model is the wrapped embedder's model.
func (c *CachedEmbedder) GetEmbedding(ctx context.Context, text, model string) (Vector, error) {
	key := CacheKey(model, text)
	if v, ok := c.lru.Get(key); ok {
		c.metrics.EmbeddingCacheHits.Inc()
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.lru.Get(key); ok {
			c.metrics.EmbeddingCacheHits.Inc()
			return v, nil
		}
		if c.store != nil {
			v, ok, err := c.store.GetEmbedding(ctx, key)
			if err != nil {
				c.log.Warn("embedding cache lookup failed", zap.Error(err))
			} else if ok {
				c.metrics.EmbeddingCacheHits.Inc()
				c.lru.Add(key, v)
				return v, nil
			}
		}

		c.metrics.EmbeddingCacheMisses.Inc()
		if model != c.inner.Model() {
			return nil, &ProviderError{Provider: model, Err: errModelMismatch}
		}
		v, err := c.inner.Embed(ctx, text)
		if err != nil {
			c.metrics.EmbeddingErrors.Inc()
			return nil, err
		}
		c.lru.Add(key, v)
		if c.store != nil {
			if err := c.store.PutEmbedding(ctx, key, model, v); err != nil {
				c.log.Warn("embedding cache write failed", zap.Error(err))
			}
		}
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Vector), nil
}
