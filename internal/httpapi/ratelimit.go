package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// staleVisitorAge is how long a visitor's bucket survives without a
// request before the janitor reclaims it.
const staleVisitorAge = 3 * time.Minute

// janitorInterval is how often the janitor sweeps for stale visitors.
const janitorInterval = 1 * time.Minute

// visitor tracks one client IP's token bucket and its last request.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-client-IP token bucket, grounded on
// Mindburn-Labs-helm/core/pkg/api's GlobalRateLimiter and generalized
// to the configured requests-per-duration pair from config.toml's
// [api] section (spec.md §6).
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	rps   rate.Limit
	burst int

	done chan struct{}
}

// NewRateLimiter builds a limiter allowing requests per duration
// seconds, per client IP, with a burst equal to that same count.
func NewRateLimiter(requests, durationSeconds int) *RateLimiter {
	if requests <= 0 {
		requests = 100
	}
	if durationSeconds <= 0 {
		durationSeconds = 60
	}

	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(float64(requests) / float64(durationSeconds)),
		burst:    requests,
		done:     make(chan struct{}),
	}
	go rl.janitor()
	return rl
}

// Stop ends the background janitor goroutine.
func (rl *RateLimiter) Stop() {
	close(rl.done)
}

func (rl *RateLimiter) getVisitor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *RateLimiter) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			for ip, v := range rl.visitors {
				if time.Since(v.lastSeen) > staleVisitorAge {
					delete(rl.visitors, ip)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Middleware rejects requests over the per-IP rate with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = strings.TrimSuffix(strings.TrimPrefix(r.RemoteAddr, "["), "]")
		}

		if !rl.getVisitor(ip).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}
