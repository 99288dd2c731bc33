package rate

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

const (
	DefaultMax    = 600
	DefaultWindow = time.Minute
	DefaultPrefix = "opslinkcad:rl:"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	WindowTTL   time.Duration
	CurrentHits int64
}

// Limiter es lo que consume el middleware HTTP.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// RedisLimiter: fixed window sencillo (INCR + EXPIRE), compartido entre réplicas.
type RedisLimiter struct {
	Client *rdb.Client
	Prefix string
	Max    int64
	Window time.Duration
	Now    func() time.Time
}

func NewRedisLimiter(client *rdb.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisLimiter{
		Client: client,
		Prefix: prefix,
		Max:    int64(max),
		Window: window,
		Now:    time.Now,
	}
}

func (l *RedisLimiter) windowKey(key string, now time.Time) string {
	winStart := now.Truncate(l.Window)
	return fmt.Sprintf("%s%s:%d", l.Prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := l.Now().UTC()
	redisKey := l.windowKey(key, now)

	pipe := l.Client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("rate: redis: %w", err)
	}

	// expiry en el primer hit de la ventana
	if incr.Val() == 1 || ttl.Val() < 0 {
		if err := l.Client.Expire(ctx, redisKey, l.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("rate: redis expire: %w", err)
		}
		ttl = l.Client.TTL(ctx, redisKey)
	}

	res := decide(incr.Val(), l.Max, ttl.Val())
	if !res.Allowed && res.RetryAfter <= 0 {
		res.RetryAfter = time.Duration(math.Ceil(l.Window.Seconds())) * time.Second
	}
	return res, nil
}

// Ping se usa desde /health.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.Client.Ping(ctx).Err()
}

func decide(hits, max int64, ttl time.Duration) Result {
	remaining := max - hits
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:     hits <= max,
		Remaining:   remaining,
		CurrentHits: hits,
		WindowTTL:   ttl,
	}
	if !res.Allowed {
		// resto de la ventana
		res.RetryAfter = ttl
	}
	return res
}
