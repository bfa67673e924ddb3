package server

import (
	"net"
	"net/http"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// maxVisitors bounds the number of tracked clients; the least recently seen
// client is evicted first.
const maxVisitors = 10000

// rateLimiter provides per-client rate limiting.
type rateLimiter struct {
	rate  rate.Limit
	burst int

	mu       sync.Mutex
	visitors *lru.Cache[string, *rate.Limiter]
}

func newRateLimiter(r float64, burst int) *rateLimiter {
	visitors, err := lru.New[string, *rate.Limiter](maxVisitors)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &rateLimiter{rate: rate.Limit(r), burst: burst, visitors: visitors}
}

// allow reports whether a request from key may proceed.
func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	limiter, ok := rl.visitors.Get(key)
	if !ok {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.visitors.Add(key, limiter)
	}
	rl.mu.Unlock()
	return limiter.Allow()
}

// clientKey identifies the client of r by remote IP.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
