package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultAuthRateLimit = 30
	authRateWindow       = time.Minute
)

// rateLimiter gives every client IP its own token bucket holding burst
// tokens and refilling burst per window.
type rateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	window  time.Duration
	clients map[string]*rateClient
	now     func() time.Time
	sweptAt time.Time
}

type rateClient struct {
	limiter *rate.Limiter
	seen    time.Time
}

func newRateLimiter(burst int, window time.Duration) *rateLimiter {
	if burst <= 0 {
		burst = defaultAuthRateLimit
	}
	return &rateLimiter{
		limit:   rate.Every(window / time.Duration(burst)),
		burst:   burst,
		window:  window,
		clients: make(map[string]*rateClient),
		now:     time.Now,
	}
}

// allow takes a token for key and returns how long to wait when the bucket
// is empty. A refused attempt gives its reservation back.
func (l *rateLimiter) allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.sweptAt) > l.window {
		// A bucket idle for a whole window is full again, same as a new one.
		for k, c := range l.clients {
			if now.Sub(c.seen) >= l.window {
				delete(l.clients, k)
			}
		}
		l.sweptAt = now
	}
	c, ok := l.clients[key]
	if !ok {
		c = &rateClient{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.seen = now
	res := c.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, l.window
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (s *Server) rateLimited(fn http.HandlerFunc) http.HandlerFunc {
	if s.authLimiter == nil {
		return fn
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ok, wait := s.authLimiter.allow(s.clientIPs.clientIPFromRequest(r))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			jsonError(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		fn(w, r)
	}
}
