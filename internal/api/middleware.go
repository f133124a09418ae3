package api

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

func (s *BroadchatApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Printf("panic: %v", panicError)
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func (s *BroadchatApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		userId, err := s.extractUserIdFromToken(tokenString)
		if err != nil {
			s.log.Printf("failed to extract user id from token: %v", err)
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		ctx := WithUserId(r.Context(), userId)
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next(w, r.WithContext(ctx))
	}
}

type keyLimiter struct {
	lim *rate.Limiter
	ts  time.Time
}

// ipRateLimiter is a token-bucket guard for the REST surface, keyed by
// client IP. The WebSocket gateway has its own per-event fixed-window
// limiter with different semantics.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*keyLimiter
	r        rate.Limit
	burst    int
	ttl      time.Duration
	stop     chan struct{}
}

func newIPRateLimiter(r rate.Limit, burst int, ttl time.Duration) *ipRateLimiter {
	rl := &ipRateLimiter{
		limiters: make(map[string]*keyLimiter),
		r:        r,
		burst:    burst,
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	go rl.gc()

	return rl
}

func (rl *ipRateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	kl, ok := rl.limiters[key]
	if ok {
		kl.ts = time.Now()
		return kl.lim
	}

	lim := rate.NewLimiter(rl.r, rl.burst)
	rl.limiters[key] = &keyLimiter{lim: lim, ts: time.Now()}
	return lim
}

func (rl *ipRateLimiter) gc() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			now := time.Now()
			rl.mu.Lock()
			for k, v := range rl.limiters {
				if now.Sub(v.ts) > rl.ttl {
					delete(rl.limiters, k)
				}
			}
			rl.mu.Unlock()
		}
	}
}

func (rl *ipRateLimiter) Stop() {
	select {
	case <-rl.stop:
	default:
		close(rl.stop)
	}
}

func (s *BroadchatApp) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.ipLimiter.get(clientIP(r.RemoteAddr)).Allow() {
			errResp := NewTooManyRequestsError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}
