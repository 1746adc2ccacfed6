package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"runbox/internal/config"
	"runbox/internal/gateway/handlers"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// RequestsPerMinute is the token refill rate per client.
	RequestsPerMinute int
	// Burst is the bucket capacity.
	Burst int
	// RunCost is the number of tokens a code run (POST /api/v1/run or a
	// websocket upgrade) takes. Other requests take one.
	RunCost int
	// Enabled enables or disables rate limiting.
	Enabled bool
	// CleanupInterval is how often idle buckets are dropped.
	CleanupInterval time.Duration
}

// DefaultRateLimiterConfig returns the default rate limiter configuration.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerMinute: 60,
		Burst:             10,
		RunCost:           5,
		Enabled:           true,
		CleanupInterval:   5 * time.Minute,
	}
}

// RateLimiterConfigFrom converts the gateway settings, filling zero values
// from the defaults.
func RateLimiterConfigFrom(cfg config.RateLimitConfig) RateLimiterConfig {
	def := DefaultRateLimiterConfig()
	rl := RateLimiterConfig{
		RequestsPerMinute: cfg.RequestsPerMinute,
		Burst:             cfg.Burst,
		RunCost:           cfg.RunCost,
		Enabled:           cfg.Enabled,
		CleanupInterval:   cfg.CleanupInterval,
	}
	if rl.RequestsPerMinute <= 0 {
		rl.RequestsPerMinute = def.RequestsPerMinute
	}
	if rl.Burst <= 0 {
		rl.Burst = def.Burst
	}
	if rl.RunCost <= 0 {
		rl.RunCost = def.RunCost
	}
	if rl.CleanupInterval <= 0 {
		rl.CleanupInterval = def.CleanupInterval
	}
	return rl
}

// Decision is the outcome of taking tokens from a client's bucket.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration // zero when allowed
}

type bucket struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	config  RateLimiterConfig
	limit   rate.Limit
	buckets sync.Map // ip -> *bucket

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a rate limiter. A cleanup goroutine runs until Stop
// when limiting is enabled.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config: cfg,
		limit:  rate.Limit(float64(cfg.RequestsPerMinute) / 60),
		stopCh: make(chan struct{}),
	}
	if cfg.Enabled && cfg.CleanupInterval > 0 {
		go rl.cleanup()
	}
	return rl
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case now := <-ticker.C:
			rl.dropIdle(now, 2*rl.config.CleanupInterval)
		}
	}
}

// dropIdle removes buckets untouched for longer than idle. A full bucket
// recreated later behaves the same as the dropped one.
func (rl *RateLimiter) dropIdle(now time.Time, idle time.Duration) int {
	dropped := 0
	rl.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		stale := now.Sub(b.lastSeen) > idle
		b.mu.Unlock()
		if stale {
			rl.buckets.Delete(key)
			dropped++
		}
		return true
	})
	return dropped
}

// Take removes cost tokens from ip's bucket if it holds enough. Costs above
// the burst are clamped so that a run can always eventually succeed.
func (rl *RateLimiter) Take(ip string, cost int) Decision {
	if !rl.config.Enabled {
		return Decision{Allowed: true, Remaining: rl.config.Burst}
	}

	need := min(max(cost, 1), rl.config.Burst)

	now := time.Now()
	v, ok := rl.buckets.Load(ip)
	if !ok {
		v, _ = rl.buckets.LoadOrStore(ip, &bucket{limiter: rate.NewLimiter(rl.limit, rl.config.Burst)})
	}
	b := v.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastSeen = now

	if b.limiter.AllowN(now, need) {
		return Decision{Allowed: true, Remaining: int(b.limiter.TokensAt(now))}
	}

	tokens := b.limiter.TokensAt(now)
	wait := time.Duration((float64(need) - tokens) / float64(rl.limit) * float64(time.Second))
	return Decision{Remaining: int(tokens), RetryAfter: wait}
}

// cost returns the token price of a request.
func (rl *RateLimiter) cost(r *http.Request) int {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/run":
		return rl.config.RunCost
	case r.URL.Path == "/ws":
		return rl.config.RunCost
	}
	return 1
}

// RateLimit returns a middleware that rate limits requests per client IP.
// Health checks and metrics scrapes are never limited.
func (rl *RateLimiter) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.config.Enabled || quietPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		d := rl.Take(getClientIP(r), rl.cost(r))

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.RequestsPerMinute))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
			handlers.SendError(w, http.StatusTooManyRequests, handlers.ErrCodeRateLimited, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
