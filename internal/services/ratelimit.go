package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"

	"splitsteal-backend/internal/models"
)

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, account models.AccountID, action string, limit int, window time.Duration) (bool, error)
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryRateLimiter is a fixed-window counter per account and action.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	clock   quartz.Clock
	windows map[string]*window
}

func NewMemoryRateLimiter(clock quartz.Clock) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		clock:   clock,
		windows: make(map[string]*window),
	}
}

func (l *MemoryRateLimiter) CheckRateLimit(ctx context.Context, account models.AccountID, action string, limit int, period time.Duration) (bool, error) {
	key := fmt.Sprintf(KeyRateLimit, account, action)
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(period)}
		l.windows[key] = w
	}
	w.count++

	return w.count <= limit, nil
}
