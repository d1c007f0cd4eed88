package refdata

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// ErrCacheMiss is returned by a RedisClient when the key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// RedisClient is the subset of redis used by the aerodrome cache.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// goRedis adapts *redis.Client to RedisClient.
type goRedis struct {
	rdb *redis.Client
}

// NewRedisClient wraps a go-redis client.
func NewRedisClient(rdb *redis.Client) RedisClient {
	return &goRedis{rdb: rdb}
}

func (g *goRedis) Get(ctx context.Context, key string) (string, error) {
	v, err := g.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return v, err
}

func (g *goRedis) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return g.rdb.Set(ctx, key, value, ttl).Err()
}

// CachedAerodromes is a read-through cache in front of an AerodromeResolver. Cache failures
// are logged and fall through to the underlying resolver.
type CachedAerodromes struct {
	next   AerodromeResolver
	cache  RedisClient
	ttl    time.Duration
	logger *logrus.Logger
	group  singleflight.Group
}

// NewCachedAerodromes creates a cache with the given entry lifetime.
func NewCachedAerodromes(next AerodromeResolver, cache RedisClient, ttl time.Duration, logger *logrus.Logger) *CachedAerodromes {
	if logger == nil {
		logger = logrus.New()
	}
	return &CachedAerodromes{next: next, cache: cache, ttl: ttl, logger: logger}
}

// lookupTimeout bounds a shared lookup once it no longer follows its first caller's context.
const lookupTimeout = 10 * time.Second

func cacheKey(icao string) string {
	return "flightops:aerodrome:" + icao
}

// ResolveAerodrome implements AerodromeResolver.
func (c *CachedAerodromes) ResolveAerodrome(ctx context.Context, icao string) (Aerodrome, error) {
	code := NormalizeICAO(icao)
	key := cacheKey(code)

	raw, err := c.cache.Get(ctx, key)
	if err == nil {
		var a Aerodrome
		if jerr := json.Unmarshal([]byte(raw), &a); jerr == nil {
			return a, nil
		}
	} else if !errors.Is(err, ErrCacheMiss) {
		c.logger.WithError(err).WithField("icao", code).Warn("Aerodrome cache read failed")
	}

	// Collapse concurrent misses for the same code into one lookup. The lookup outlives any
	// single caller's cancellation; each caller stops waiting on its own context.
	ch := c.group.DoChan(code, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()

		a, err := c.next.ResolveAerodrome(lookupCtx, code)
		if err != nil {
			return Aerodrome{}, err
		}
		if b, err := json.Marshal(a); err == nil {
			if err := c.cache.Set(lookupCtx, key, string(b), c.ttl); err != nil {
				c.logger.WithError(err).WithField("icao", code).Warn("Aerodrome cache write failed")
			}
		}
		return a, nil
	})

	select {
	case <-ctx.Done():
		return Aerodrome{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Aerodrome{}, res.Err
		}
		return res.Val.(Aerodrome), nil
	}
}
