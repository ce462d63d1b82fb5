/*
Package limiter provides token-bucket rate limiting keyed by an arbitrary string,
such as a client IP address or a websocket session id.

Idle limiters are dropped by a background sweep so the key space does not grow without bound.
*/
package limiter

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"groupmatch/internal/pkg/errs"
	"groupmatch/internal/pkg/logx"
	"groupmatch/internal/pkg/resp"
)

const sweepInterval = 3 * time.Minute

// KeyedLimiter holds one *rate.Limiter per key.
type KeyedLimiter struct {
	// mu protects the limits map.
	mu sync.RWMutex

	limits map[string]*rate.Limiter

	// r is the refill rate, b the bucket size.
	r rate.Limit
	b int

	stop     chan struct{}
	stopOnce sync.Once
}

// New creates a KeyedLimiter refilling at r tokens per second with burst b.
func New(r rate.Limit, b int) *KeyedLimiter {
	l := &KeyedLimiter{
		limits: make(map[string]*rate.Limiter),
		r:      r,
		b:      b,
		stop:   make(chan struct{}),
	}

	go l.sweep()

	return l
}

// PerWindow creates a limiter admitting n events per window, all of which may burst.
func PerWindow(n int, window time.Duration) *KeyedLimiter {
	return New(rate.Every(window/time.Duration(n)), n)
}

// GetLimiter returns the limiter for key, creating it on first use.
func (l *KeyedLimiter) GetLimiter(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, exists := l.limits[key]
	l.mu.RUnlock()

	if !exists {
		l.mu.Lock()
		limiter, exists = l.limits[key]
		if !exists {
			limiter = rate.NewLimiter(l.r, l.b)
			l.limits[key] = limiter
		}
		l.mu.Unlock()
	}

	return limiter
}

// Allow consumes one token for key.
func (l *KeyedLimiter) Allow(key string) bool {
	return l.GetLimiter(key).Allow()
}

// Forget drops the limiter for key, e.g. once a session disconnects.
func (l *KeyedLimiter) Forget(key string) {
	l.mu.Lock()
	delete(l.limits, key)
	l.mu.Unlock()
}

// Len returns the number of tracked keys.
func (l *KeyedLimiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limits)
}

// Stop ends the background sweep.
func (l *KeyedLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// sweep removes limiters whose bucket is full again, i.e. keys that have gone idle.
func (l *KeyedLimiter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, remaining := l.sweepOnce(time.Now())
			logx.Debug("Rate limiter sweep finished.", "removed", removed, "remaining", remaining)
		case <-l.stop:
			return
		}
	}
}

func (l *KeyedLimiter) sweepOnce(now time.Time) (removed, remaining int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, limiter := range l.limits {
		if limiter.TokensAt(now) >= float64(limiter.Burst()) {
			delete(l.limits, key)
			removed++
		}
	}
	return removed, len(l.limits)
}

// ClientIP returns the host part of the request's remote address.
func ClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}

	if ip == "" {
		ip = "unknown_ip"
	}
	return ip
}

// Middleware rejects requests whose client IP exceeded the limit with ErrRateLimitExceeded.
func (l *KeyedLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)

		if !l.Allow(ip) {
			logx.Warn("Request rejected: Rate limit exceeded.", "ip", logx.AnonymizeIP(ip))
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		next.ServeHTTP(w, r)
	})
}
