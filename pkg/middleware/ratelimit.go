package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	maxTrackedClients = 10000
	staleAfter        = 5 * time.Minute
)

// clientBucket pairs a token bucket with its last use so idle clients
// can be evicted
type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a per-client token bucket to the cron endpoints.
// The cron surface expects one scheduler calling a few times an hour;
// anything faster gets a 429.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket
	rate    rate.Limit
	burst   int
	stopCh  chan struct{}
}

// NewRateLimiter allows requestsPerSecond sustained with the given
// burst per client address
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*clientBucket),
		rate:    rate.Limit(requestsPerSecond),
		burst:   burst,
		stopCh:  make(chan struct{}),
	}
	go rl.evictLoop()
	return rl
}

func (rl *RateLimiter) evictLoop() {
	ticker := time.NewTicker(staleAfter)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.evictStale()
		}
	}
}

func (rl *RateLimiter) evictStale() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-staleAfter)
	for addr, bucket := range rl.clients {
		if bucket.lastSeen.Before(cutoff) {
			delete(rl.clients, addr)
		}
	}
}

// Shutdown stops the eviction goroutine
func (rl *RateLimiter) Shutdown() {
	close(rl.stopCh)
}

func (rl *RateLimiter) bucketFor(addr string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if bucket, ok := rl.clients[addr]; ok {
		bucket.lastSeen = time.Now()
		return bucket.limiter
	}

	if len(rl.clients) >= maxTrackedClients {
		rl.evictOldestLocked()
	}

	bucket := &clientBucket{
		limiter:  rate.NewLimiter(rl.rate, rl.burst),
		lastSeen: time.Now(),
	}
	rl.clients[addr] = bucket
	return bucket.limiter
}

// evictOldestLocked removes the least recently seen client; the caller
// holds rl.mu
func (rl *RateLimiter) evictOldestLocked() {
	var oldestAddr string
	var oldestSeen time.Time

	for addr, bucket := range rl.clients {
		if oldestAddr == "" || bucket.lastSeen.Before(oldestSeen) {
			oldestAddr = addr
			oldestSeen = bucket.lastSeen
		}
	}
	if oldestAddr != "" {
		delete(rl.clients, oldestAddr)
	}
}

// HTTPHandlerFunc wraps a handler with the per-client limit
func (rl *RateLimiter) HTTPHandlerFunc(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rl.bucketFor(r.RemoteAddr).Allow() {
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}
		handler(w, r)
	}
}
