package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"sinhome/internal/gateway/handlers"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// RequestsPerMinute is the sustained rate allowed per client.
	RequestsPerMinute int
	// Burst is the number of requests a quiet client may send at once.
	Burst int
	// Enabled enables or disables rate limiting.
	Enabled bool
	// CleanupInterval is how often idle clients are forgotten.
	CleanupInterval time.Duration
}

// DefaultRateLimiterConfig returns the default rate limiter configuration.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerMinute: 60,
		Burst:             10,
		Enabled:           true,
		CleanupInterval:   5 * time.Minute,
	}
}

// Paths never limited: probes and the long-lived log stream.
var unlimitedPaths = map[string]bool{
	"/api/v1/health":      true,
	"/api/v1/logs/stream": true,
}

// bucket is one client's token bucket.
type bucket struct {
	tokens float64
	seen   time.Time
}

// RateLimiter limits requests per client IP with token buckets. Each
// request costs one token; tokens refill at RequestsPerMinute up to Burst.
type RateLimiter struct {
	config RateLimiterConfig
	perSec float64
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a rate limiter. Non-positive rate and burst take
// their defaults.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	def := DefaultRateLimiterConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = def.RequestsPerMinute
	}
	if config.Burst <= 0 {
		config.Burst = def.Burst
	}
	rl := &RateLimiter{
		config:  config,
		perSec:  float64(config.RequestsPerMinute) / 60,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		stopCh:  make(chan struct{}),
	}

	if config.Enabled && config.CleanupInterval > 0 {
		go rl.cleanup()
	}
	return rl
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Clients returns the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.sweep(2 * rl.config.CleanupInterval)
		}
	}
}

// sweep forgets clients idle for longer than idle.
func (rl *RateLimiter) sweep(idle time.Duration) int {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for ip, b := range rl.buckets {
		if now.Sub(b.seen) > idle {
			delete(rl.buckets, ip)
			removed++
		}
	}
	return removed
}

// Allow takes a token for ip. It returns whether the request may proceed,
// the whole tokens left and when the bucket will be full again.
func (rl *RateLimiter) Allow(ip string) (bool, int, time.Time) {
	now := rl.now()
	if !rl.config.Enabled {
		return true, rl.config.RequestsPerMinute, now.Add(time.Minute)
	}

	burst := float64(rl.config.Burst)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[ip]
	if !ok {
		b = &bucket{tokens: burst, seen: now}
		rl.buckets[ip] = b
	}
	b.tokens = math.Min(burst, b.tokens+now.Sub(b.seen).Seconds()*rl.perSec)
	b.seen = now

	allowed := b.tokens >= 1
	if allowed {
		b.tokens--
	}
	full := now.Add(time.Duration((burst - b.tokens) / rl.perSec * float64(time.Second)))
	return allowed, int(b.tokens), full
}

// RateLimit returns a middleware that answers 429 RATE_LIMITED once a
// client has spent its tokens.
func (rl *RateLimiter) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.config.Enabled || unlimitedPaths[strings.TrimRight(r.URL.Path, "/")] {
			next.ServeHTTP(w, r)
			return
		}

		allowed, remaining, reset := rl.Allow(getClientIP(r))

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.config.RequestsPerMinute))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !allowed {
			wait := time.Duration(float64(time.Second) / rl.perSec)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			handlers.SendError(w, http.StatusTooManyRequests, handlers.ErrCodeRateLimited, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
