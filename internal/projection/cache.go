package projection

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/prohmpiriya/ticketcore/internal/corerr"
)

//go:embed scripts/put_if_newer.lua
var putIfNewerScript string

// RedisCache fronts available_seats with a Redis hash keyed by the
// same key Manager uses for Store, following
// redis_reservation_repository.go's EvalSha-with-fallback shape: the
// script is loaded once and invoked by SHA, reloading on a NOSCRIPT
// miss (e.g. after a Redis restart flushed the script cache).
type RedisCache struct {
	client *redis.Client
	sha    string
}

// NewRedisCache wraps an already-connected client. Scripts are loaded
// lazily on first Put so construction never talks to the network.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) ensureScript(ctx context.Context) error {
	if c.sha != "" {
		return nil
	}
	sha, err := c.client.ScriptLoad(ctx, putIfNewerScript).Result()
	if err != nil {
		return corerr.Wrap(corerr.KindStorage, "load put_if_newer script", err)
	}
	c.sha = sha
	return nil
}

// Put writes model to the cache under key, only if model.Version is
// not older than whatever is already cached.
func (c *RedisCache) Put(ctx context.Context, key string, model AvailableSeats) error {
	if err := c.ensureScript(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(model)
	if err != nil {
		return corerr.Wrap(corerr.KindSerialization, "marshal available_seats for cache", err)
	}

	err = c.client.EvalSha(ctx, c.sha, []string{cacheKey(key)}, model.Version, payload).Err()
	if err != nil && isNoScript(err) {
		c.sha = ""
		if err := c.ensureScript(ctx); err != nil {
			return err
		}
		err = c.client.EvalSha(ctx, c.sha, []string{cacheKey(key)}, model.Version, payload).Err()
	}
	if err != nil {
		return corerr.Wrap(corerr.KindStorage, "write available_seats to cache", err)
	}
	return nil
}

// Get returns the cached model for key, if present.
func (c *RedisCache) Get(ctx context.Context, key string) (AvailableSeats, bool, error) {
	payload, err := c.client.HGet(ctx, cacheKey(key), "payload").Result()
	if errors.Is(err, redis.Nil) {
		return AvailableSeats{}, false, nil
	}
	if err != nil {
		return AvailableSeats{}, false, corerr.Wrap(corerr.KindStorage, "read available_seats from cache", err)
	}

	var model AvailableSeats
	if err := json.Unmarshal([]byte(payload), &model); err != nil {
		return AvailableSeats{}, false, corerr.Wrap(corerr.KindSerialization, "unmarshal cached available_seats", err)
	}
	return model, true, nil
}

// Invalidate drops a key, used when a rebuild resets the durable store
// and the cache must not keep serving pre-rebuild data.
func (c *RedisCache) Invalidate(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, cacheKey(key)).Err(); err != nil {
		return corerr.Wrap(corerr.KindStorage, "invalidate available_seats cache entry", err)
	}
	return nil
}

func cacheKey(key string) string {
	return "projection:available_seats:" + key
}

func isNoScript(err error) bool {
	return strings.HasPrefix(err.Error(), "NOSCRIPT")
}
