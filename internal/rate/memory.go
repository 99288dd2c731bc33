package rate

import (
	"context"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryLimiter es el fallback in-process (CACHE_KIND=memory). Misma ventana
// fija que RedisLimiter pero el conteo es por réplica.
type MemoryLimiter struct {
	c      *cache.Cache
	Max    int64
	Window time.Duration
	Now    func() time.Time
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	if max <= 0 {
		max = DefaultMax
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &MemoryLimiter{
		c:      cache.New(window, 2*window),
		Max:    int64(max),
		Window: window,
		Now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.Now().UTC()
	winStart := now.Truncate(l.Window)
	k := key + ":" + strconv.FormatInt(winStart.Unix(), 10)
	ttl := winStart.Add(l.Window).Sub(now)

	var hits int64
	if err := l.c.Add(k, int64(1), ttl); err == nil {
		hits = 1
	} else {
		n, err := l.c.IncrementInt64(k, 1)
		if err != nil {
			// expiró entre Add e Increment: arranca ventana nueva
			l.c.Set(k, int64(1), ttl)
			n = 1
		}
		hits = n
	}
	return decide(hits, l.Max, ttl), nil
}
