package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"traceability/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ── Fixed-window rate limiter ────────────────────────────────────────────────

type window struct {
	count int
	end   time.Time
}

// RateLimiter counts requests per client IP in fixed windows. Expired windows
// are swept lazily at most once per window length.
type RateLimiter struct {
	limit  int
	length time.Duration
	now    func() time.Time

	mu        sync.Mutex
	clients   map[string]*window
	nextSweep time.Time
}

func NewRateLimiter(limit int, length time.Duration) *RateLimiter {
	return &RateLimiter{limit: limit, length: length, now: time.Now, clients: make(map[string]*window)}
}

// Allow records one request for key and reports whether it is within the
// limit, with the time the current window ends.
func (l *RateLimiter) Allow(key string) (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.After(l.nextSweep) {
		l.sweep(now)
		l.nextSweep = now.Add(l.length)
	}

	w, ok := l.clients[key]
	if !ok || now.After(w.end) {
		w = &window{end: now.Add(l.length)}
		l.clients[key] = w
	}
	w.count++
	return w.count <= l.limit, w.end
}

func (l *RateLimiter) sweep(now time.Time) {
	purged := 0
	for k, w := range l.clients {
		if now.After(w.end) {
			delete(l.clients, k)
			purged++
		}
	}
	if purged > 0 {
		log.Debug().Int("purged", purged).Int("remaining", len(l.clients)).Msg("rate limiter swept")
	}
}

// Handler rejects requests over the limit with 429 and a Retry-After header.
func (l *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, end := l.Allow(c.ClientIP())
		if !ok {
			retry := int(end.Sub(l.now()).Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apierror.New("too many requests"))
			return
		}
		c.Next()
	}
}
