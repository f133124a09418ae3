package server

import (
	"math"
	"sync"
	"time"
)

// RatePolicy bounds one event kind to Limit attempts per Window.
type RatePolicy struct {
	Limit  int
	Window time.Duration
}

// DefaultRatePolicies returns the per-event admission budgets. Events
// without an entry fall back to the limiter's default policy.
func DefaultRatePolicies() map[string]RatePolicy {
	return map[string]RatePolicy{
		EventSendMessage: {Limit: 7, Window: 10 * time.Second},
		EventJoinRoom:    {Limit: 5, Window: 30 * time.Second},
		EventLeaveRoom:   {Limit: 5, Window: 30 * time.Second},
	}
}

type rateWindow struct {
	hits      int
	expiresAt time.Time
}

// Admission is the outcome of one rate-limit attempt. TotalHits counts
// every attempt in the current window, including this one and including
// rejected ones.
type Admission struct {
	Allowed      bool
	TotalHits    int
	TimeToExpire int
}

// RateLimiter is fixed-window admission control keyed by
// (identity, event). Windows reset in place when they expire; they are
// never slid. Single-process only: the window store is an in-memory map,
// which is acceptable because the gateway does not scale horizontally.
type RateLimiter struct {
	mu            sync.Mutex
	policies      map[string]RatePolicy
	defaultPolicy RatePolicy
	windows       map[string]*rateWindow
	now           func() time.Time
}

func NewRateLimiter(policies map[string]RatePolicy) *RateLimiter {
	return &RateLimiter{
		policies:      policies,
		defaultPolicy: RatePolicy{Limit: 30, Window: time.Minute},
		windows:       make(map[string]*rateWindow),
		now:           time.Now,
	}
}

// Allow records one attempt for (identity, event) and reports whether it
// is admitted. The hit is counted before the limit check, so the attempt
// that trips the limit is reported with TotalHits = Limit+1.
func (rl *RateLimiter) Allow(identity, event string) Admission {
	policy, ok := rl.policies[event]
	if !ok {
		policy = rl.defaultPolicy
	}

	key := identity + ":" + event

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok || !now.Before(w.expiresAt) {
		w = &rateWindow{expiresAt: now.Add(policy.Window)}
		rl.windows[key] = w
	}

	w.hits++

	return Admission{
		Allowed:      w.hits <= policy.Limit,
		TotalHits:    w.hits,
		TimeToExpire: int(math.Ceil(w.expiresAt.Sub(now).Seconds())),
	}
}
