package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Throttle ограничивает частоту команд и нажатий одного пользователя
type Throttle interface {
	Allow(ctx context.Context, userID int64) bool
}

// RedisThrottle пропускает не больше одного действия за окно через SETNX
type RedisThrottle struct {
	client *redis.Client
	window time.Duration
}

func NewRedisThrottle(client *redis.Client, window time.Duration) *RedisThrottle {
	return &RedisThrottle{client: client, window: window}
}

func (t *RedisThrottle) Allow(ctx context.Context, userID int64) bool {
	ok, err := t.client.SetNX(ctx, fmt.Sprintf("pixelpie:throttle:%d", userID), 1, t.window).Result()
	if err != nil {
		// Redis недоступен: не блокируем пользователя
		return true
	}
	return ok
}

// MemoryThrottle лимитер на пользователя в памяти процесса.
// Лимитеры, простоявшие дольше полного восстановления, удаляются:
// новый лимитер для такого пользователя ведет себя так же.
type MemoryThrottle struct {
	mu        sync.Mutex
	limiters  map[int64]*throttleEntry
	every     time.Duration
	burst     int
	idle      time.Duration
	lastSweep time.Time
}

type throttleEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

func NewMemoryThrottle(every time.Duration, burst int) *MemoryThrottle {
	if burst < 1 {
		burst = 1
	}
	return &MemoryThrottle{
		limiters:  make(map[int64]*throttleEntry),
		every:     every,
		burst:     burst,
		idle:      every * time.Duration(burst),
		lastSweep: time.Now(),
	}
}

func (t *MemoryThrottle) Allow(_ context.Context, userID int64) bool {
	now := time.Now()

	t.mu.Lock()
	if now.Sub(t.lastSweep) > t.idle {
		t.sweep(now)
	}
	e, ok := t.limiters[userID]
	if !ok {
		e = &throttleEntry{limiter: rate.NewLimiter(rate.Every(t.every), t.burst)}
		t.limiters[userID] = e
	}
	e.seen = now
	t.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

func (t *MemoryThrottle) sweep(now time.Time) {
	for id, e := range t.limiters {
		if now.Sub(e.seen) > t.idle {
			delete(t.limiters, id)
		}
	}
	t.lastSweep = now
}

func (t *MemoryThrottle) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.limiters)
}
