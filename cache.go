package foxytools

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/weapp/foxytools/internal/backoff"
)

// DefaultComputeAttempts bounds how many times a failing compute runs
// before the cache gives up.
const DefaultComputeAttempts = 10

// CacheConfig tunes a ResponseCache.
type CacheConfig struct {
	// Codec encodes stored responses. Defaults to YAMLCodec.
	Codec Codec
	// Attempts is the compute bound. Defaults to DefaultComputeAttempts.
	Attempts int
	// Backoff spaces out compute attempts. The zero policy retries at once.
	Backoff backoff.Policy
	// RetryIf decides whether a compute error is worth another attempt.
	// Nil retries every error.
	RetryIf func(error) bool
	Metrics *MetricsCollector
	// Logger receives hit, miss and write events.
	Logger Logger
	// RetryLogger receives compute retries and the final compute failure.
	RetryLogger Logger
}

// ResponseCache memoizes responses in a CacheBackend. Entries are never
// expired; they go away only through Delete or DeleteAll.
type ResponseCache struct {
	backend CacheBackend
	cfg     CacheConfig
	group   singleflight.Group
}

// NewResponseCache returns a cache persisting through backend.
func NewResponseCache(backend CacheBackend, cfg CacheConfig) *ResponseCache {
	if cfg.Codec == nil {
		cfg.Codec = YAMLCodec{}
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultComputeAttempts
	}
	return &ResponseCache{backend: backend, cfg: cfg}
}

// Backend returns the persistence backend.
func (c *ResponseCache) Backend() CacheBackend {
	return c.backend
}

// FetchOrCompute returns the cached response for keyParts in collection,
// computing and persisting it on a miss. With skip set, compute runs
// exactly once and the backend is never touched.
func (c *ResponseCache) FetchOrCompute(ctx context.Context, collection string, keyParts any, skip bool, compute ComputeFunc) (*Response, error) {
	if skip {
		return compute(ctx)
	}

	key := CacheKey(keyParts)

	resp, ok, err := c.lookup(ctx, collection, key)
	if err != nil {
		return nil, err
	}
	if ok {
		c.cfg.Metrics.RecordCacheHit(collection)
		c.debug("Cache hit", "collection", collection, "cacheKey", key)
		return resp, nil
	}
	c.cfg.Metrics.RecordCacheMiss(collection)
	c.debug("Cache miss", "collection", collection, "cacheKey", key)

	v, err, shared := c.group.Do(collection+"\x00"+key, func() (any, error) {
		// a caller that finished just before us may have filled the entry
		if resp, ok, err := c.lookup(ctx, collection, key); err != nil || ok {
			return resp, err
		}

		resp, err := c.computeWithRetry(ctx, collection, key, compute)
		if err != nil {
			return nil, err
		}

		data, err := encodeResponse(c.cfg.Codec, resp)
		if err != nil {
			return nil, err
		}
		if err := c.backend.Put(ctx, collection, key, data); err != nil {
			return nil, err
		}
		c.cfg.Metrics.RecordCacheWrite(collection)
		c.debug("Response cached", "collection", collection, "cacheKey", key, "bytes", len(data))
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.debug("Cache miss coalesced", "collection", collection, "cacheKey", key)
	}
	return v.(*Response).Clone(), nil
}

// Lookup returns the stored response for keyParts without computing.
func (c *ResponseCache) Lookup(ctx context.Context, collection string, keyParts any) (*Response, bool, error) {
	return c.lookup(ctx, collection, CacheKey(keyParts))
}

// Delete removes the entry for keyParts.
func (c *ResponseCache) Delete(ctx context.Context, collection string, keyParts any) error {
	return c.backend.Delete(ctx, collection, CacheKey(keyParts))
}

// DeleteAll wipes a collection.
func (c *ResponseCache) DeleteAll(ctx context.Context, collection string) error {
	return c.backend.DeleteAll(ctx, collection)
}

func (c *ResponseCache) lookup(ctx context.Context, collection, key string) (*Response, bool, error) {
	data, ok, err := c.backend.Get(ctx, collection, key)
	if err != nil || !ok {
		return nil, false, err
	}
	resp, err := decodeResponse(c.cfg.Codec, data)
	if err != nil {
		return nil, false, err
	}
	return resp, true, nil
}

func (c *ResponseCache) computeWithRetry(ctx context.Context, collection, key string, compute ComputeFunc) (*Response, error) {
	var lastErr error
	attempt := 0
	for attempt < c.cfg.Attempts {
		attempt++
		if attempt > 1 {
			c.cfg.Metrics.RecordComputeRetry(collection, attempt)
		}

		resp, err := compute(ctx)
		if err == nil {
			if attempt > 1 {
				c.retryDebug("Compute succeeded after retry", "collection", collection, "cacheKey", key, "attempt", attempt)
			}
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}
		if c.cfg.RetryIf != nil && !c.cfg.RetryIf(err) {
			break
		}
		if attempt == c.cfg.Attempts {
			break
		}

		delay := c.cfg.Backoff.Delay(attempt - 1)
		c.retryDebug("Scheduling compute retry", "collection", collection, "cacheKey", key, "attempt", attempt+1, "maxAttempts", c.cfg.Attempts, "backoff", delay, "error", err.Error())
		if err := backoff.Sleep(ctx, delay); err != nil {
			break
		}
	}

	if c.cfg.RetryLogger != nil {
		c.cfg.RetryLogger.Warn("Compute failed", "collection", collection, "cacheKey", key, "attempts", attempt, "error", lastErr.Error())
	}
	return nil, &CacheComputeError{Collection: collection, Key: key, Attempts: attempt, Err: lastErr}
}

func (c *ResponseCache) debug(msg string, keysAndValues ...any) {
	if c.cfg.Logger != nil {
		c.cfg.Logger.Debug(msg, keysAndValues...)
	}
}

func (c *ResponseCache) retryDebug(msg string, keysAndValues ...any) {
	if c.cfg.RetryLogger != nil {
		c.cfg.RetryLogger.Debug(msg, keysAndValues...)
	}
}
