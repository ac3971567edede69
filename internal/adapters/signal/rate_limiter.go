package signal

import (
	"sync"
	"time"

	"github.com/NolanKnievel/bucket-list-sub001/internal/domain"
)

// RateLimiter is a sliding-window limiter keyed by member, shared by all of
// a member's sessions.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[domain.MemberID][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[domain.MemberID][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(id domain.MemberID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[id]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}
	rl.history[id] = append(fresh, now)
	return true
}

// Forget drops the history of id once its last session is gone.
func (rl *RateLimiter) Forget(id domain.MemberID) {
	rl.mu.Lock()
	delete(rl.history, id)
	rl.mu.Unlock()
}
