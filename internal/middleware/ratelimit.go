package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"sync"
	"time"
)

// Throttle is per-client token bucket middleware for the HTTP transport.
type Throttle struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	rate       float64 // tokens per second
	burst      int
	maxClients int
	now        func() time.Time
}

type bucket struct {
	tokens    float64
	updatedAt time.Time
}

// NewThrottle creates a throttle with the given sustained rate (requests
// per second) and burst size.
func NewThrottle(rate float64, burst int) *Throttle {
	return &Throttle{
		buckets:    make(map[string]*bucket),
		rate:       rate,
		burst:      burst,
		maxClients: 10000,
		now:        time.Now,
	}
}

// Handler returns middleware that rejects over-limit clients with 429.
// A nil Throttle passes everything.
func (t *Throttle) Handler(next http.Handler) http.Handler {
	if t == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		retryAfter, allowed := t.allow(clientKey(r))
		if !allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", math.Ceil(retryAfter)))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allow consumes a token for key. It returns the seconds until the next
// token when the request is rejected.
func (t *Throttle) allow(key string) (retryAfter float64, allowed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	b, ok := t.buckets[key]
	if !ok {
		if len(t.buckets) >= t.maxClients {
			return 1 / t.rate, false
		}
		t.buckets[key] = &bucket{tokens: float64(t.burst) - 1, updatedAt: now}
		return 0, true
	}

	b.tokens = math.Min(float64(t.burst), b.tokens+now.Sub(b.updatedAt).Seconds()*t.rate)
	b.updatedAt = now

	if b.tokens < 1 {
		return (1 - b.tokens) / t.rate, false
	}
	b.tokens--
	return 0, true
}

// StartCleanup removes buckets idle for longer than maxIdle every interval
// until ctx is done.
func (t *Throttle) StartCleanup(ctx context.Context, interval, maxIdle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.cleanup(maxIdle)
				slog.Debug("throttle cleanup", "clients", t.Len())
			}
		}
	}()
}

func (t *Throttle) cleanup(maxIdle time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-maxIdle)
	for key, b := range t.buckets {
		if b.updatedAt.Before(cutoff) {
			delete(t.buckets, key)
		}
	}
}

// Len returns the number of tracked clients.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buckets)
}

// clientKey identifies a client by remote IP. Proxy headers are ignored
// since they are client-controlled.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
