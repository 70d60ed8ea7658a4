package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect builds a client from either a redis:// URL or a bare host:port and
// verifies it with a PING.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Redis is a Store shared across replicas. All keys are namespaced with
// Prefix.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis wraps client. prefix is prepended to every key ("boxquote:" if
// empty).
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "boxquote:"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(k string) string { return r.prefix + k }

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: redis %s: %v", ErrUnavailable, op, err)
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, unavailable("get", err)
	}
	return raw, true, nil
}

// Set implements Store.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

// Incr implements Store. INCR and PTTL run in one MULTI/EXEC; a counter
// without an expiry (the one that was just created) is then given window.
func (r *Redis) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	k := r.key(key)

	var (
		incr *redis.IntCmd
		pttl *redis.DurationCmd
	)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		pttl = p.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return 0, time.Time{}, unavailable("incr", err)
	}

	now := time.Now()
	ttl := pttl.Val()
	if ttl <= 0 {
		// no expiry yet: this call (or a concurrent one) created the key
		if err := r.client.PExpire(ctx, k, window).Err(); err != nil {
			return 0, time.Time{}, unavailable("expire", err)
		}
		ttl = window
	}
	return incr.Val(), now.Add(ttl), nil
}

// Count implements Store.
func (r *Redis) Count(ctx context.Context, key string) (int64, time.Time, error) {
	k := r.key(key)

	var (
		get  *redis.StringCmd
		pttl *redis.DurationCmd
	)
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		get = p.Get(ctx, k)
		pttl = p.PTTL(ctx, k)
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, unavailable("count", err)
	}
	n, err := get.Int64()
	if err != nil {
		return 0, time.Time{}, unavailable("count", err)
	}
	ttl := pttl.Val()
	if ttl <= 0 {
		return n, time.Time{}, nil
	}
	return n, time.Now().Add(ttl), nil
}

// Delete implements Store.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return unavailable("del", err)
	}
	return nil
}
