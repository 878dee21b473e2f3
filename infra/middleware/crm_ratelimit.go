package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"crm_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// CodeRateLimited is the error code of throttled requests.
const CodeRateLimited = "RATE_LIMITED"

// RateLimiter is a fixed-window limiter keyed by client IP and route.
type RateLimiter struct {
	requests map[string]*requestInfo
	mu       sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
}

type requestInfo struct {
	count     int
	expiresAt time.Time
}

// NewRateLimiter allows limit requests per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string]*requestInfo),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Handler returns the fiber middleware.
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.IP() + " " + c.Route().Path
		now := rl.now()

		rl.mu.Lock()
		info, ok := rl.requests[key]
		if !ok || now.After(info.expiresAt) {
			rl.sweep(now)
			info = &requestInfo{expiresAt: now.Add(rl.window)}
			rl.requests[key] = info
		}
		allowed := info.count < rl.limit
		if allowed {
			info.count++
		}
		remaining := rl.limit - info.count
		reset := info.expiresAt
		rl.mu.Unlock()

		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !allowed {
			return apperr.New(CodeRateLimited, "rate limit exceeded", http.StatusTooManyRequests).
				WithDetail("retry_after", int(reset.Sub(now).Seconds()))
		}
		return c.Next()
	}
}

// sweep drops expired windows. Callers hold rl.mu.
func (rl *RateLimiter) sweep(now time.Time) {
	for key, info := range rl.requests {
		if now.After(info.expiresAt) {
			delete(rl.requests, key)
		}
	}
}
