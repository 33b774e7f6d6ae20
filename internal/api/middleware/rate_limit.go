package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"switchboard/internal/pkg/errors"
)

const idleLimiterTTL = 10 * time.Minute

// RateLimiter keeps one token bucket per client address.
type RateLimiter struct {
	store *sync.Map // map[string]*visitor
	limit rate.Limit
	burst int
	stop  chan struct{}
	once  sync.Once
}

type visitor struct {
	limiter *rate.Limiter
	mu      sync.Mutex
	// lastAccess drives cleanup of idle clients.
	lastAccess time.Time
}

func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 600
	}
	if burst <= 0 {
		burst = 1
	}
	rl := &RateLimiter{
		store: &sync.Map{},
		limit: rate.Limit(float64(perMinute) / 60.0),
		burst: burst,
		stop:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(idleLimiterTTL)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case now := <-ticker.C:
			rl.store.Range(func(key, value interface{}) bool {
				v := value.(*visitor)
				v.mu.Lock()
				if now.Sub(v.lastAccess) > idleLimiterTTL {
					rl.store.Delete(key)
				}
				v.mu.Unlock()
				return true
			})
		}
	}
}

func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()

	val, _ := rl.store.LoadOrStore(key, &visitor{
		limiter:    rate.NewLimiter(rl.limit, rl.burst),
		lastAccess: now,
	})

	v := val.(*visitor)
	v.mu.Lock()
	v.lastAccess = now
	v.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			retryAfter := int(time.Duration(float64(time.Second)/float64(rl.limit)).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			errors.WriteError(w, http.StatusTooManyRequests, errors.ErrCodeRateLimitExceeded, "Rate limit exceeded", nil)
			return
		}

		next(w, r)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
