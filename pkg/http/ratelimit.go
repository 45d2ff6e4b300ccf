package http

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/txn2/sql-gateway/pkg/apperror"
)

// RateLimit configures the per-client request allowance.
type RateLimit struct {
	// Requests is the allowance refilled over each Window.
	Requests int
	Window   time.Duration
	// Burst is how many requests a client may make back to back. Zero means
	// the full allowance.
	Burst int
}

// RateLimiter hands each client IP its own token bucket.
type RateLimiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu      sync.Mutex
	clients map[string]*client
	swept   time.Time
}

type client struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewRateLimiter builds a limiter for cfg.
func NewRateLimiter(cfg RateLimit) *RateLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.Requests
	}
	return &RateLimiter{
		limit:   rate.Limit(float64(cfg.Requests) / cfg.Window.Seconds()),
		burst:   burst,
		idle:    cfg.Window,
		now:     time.Now,
		clients: map[string]*client{},
	}
}

// Allow takes one token from ip's bucket. When the bucket is empty it
// reports how long until the next token.
func (l *RateLimiter) Allow(ip string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)

	c, ok := l.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}
	c.seen = now

	r := c.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// sweep forgets clients idle for a full window; their buckets are full
// again by then. Runs at most once per window.
func (l *RateLimiter) sweep(now time.Time) {
	if now.Sub(l.swept) < l.idle {
		return
	}
	l.swept = now
	for ip, c := range l.clients {
		if now.Sub(c.seen) >= l.idle {
			delete(l.clients, ip)
		}
	}
}

// Middleware rejects requests from clients over their allowance with 429
// and a Retry-After header.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := l.Allow(ClientIP(r))
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			WriteError(w, apperror.New(apperror.RateLimited, "too many requests, please try again later"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the host part of the request's remote address.
// Forwarding headers are not trusted.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
