package http

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles requests per user id with a token bucket that
// refills perWindow tokens every window.
type RateLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idleAfter time.Duration
	lastSweep time.Time
	users     map[string]*userLimiter
	now       func() time.Time
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(perWindow int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:     rate.Every(window / time.Duration(perWindow)),
		burst:     perWindow,
		idleAfter: window,
		users:     make(map[string]*userLimiter),
		now:       time.Now,
	}
}

// Reserve takes a token for userID. It returns zero when the request may
// proceed, or how long the caller has to wait otherwise.
func (l *RateLimiter) Reserve(userID string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	u, ok := l.users[userID]
	if !ok {
		u = &userLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.users[userID] = u
	}
	u.lastSeen = now

	res := u.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return delay
	}
	return 0
}

// sweep drops users idle long enough for their bucket to be full again.
func (l *RateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleAfter {
		return
	}
	l.lastSweep = now
	for id, u := range l.users {
		if now.Sub(u.lastSeen) >= l.idleAfter {
			delete(l.users, id)
		}
	}
}

// Middleware rejects throttled callers with 429 and a Retry-After header.
// It must run after UserIDMiddleware.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if delay := l.Reserve(getUserIDFromContext(r.Context())); delay > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			respondError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
