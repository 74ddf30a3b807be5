package github

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/repo-oracle/internal/adapter/lru"
	"github.com/Strob0t/repo-oracle/internal/domain/ratelimit"
	"github.com/Strob0t/repo-oracle/internal/resilience"
)

// countingServer starts an httptest server that counts requests.
func countingServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func setRateHeaders(w http.ResponseWriter, limit, remaining int, reset time.Time) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Used", strconv.Itoa(limit-remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
}

type testDispatcher struct {
	*Dispatcher
	tracker *ratelimit.Tracker
	cache   *lru.Cache
}

func newTestDispatcher(t *testing.T, baseURL, token string, breaker *resilience.Breaker) testDispatcher {
	t.Helper()
	tracker := ratelimit.NewTracker()
	c := lru.New(16)
	d := NewDispatcher(DispatcherConfig{
		Client: NewClient(ClientConfig{
			BaseURL: baseURL,
			Token:   StaticToken(token),
			Timeout: 2 * time.Second,
		}),
		Cache:   c,
		TTL:     time.Minute,
		Blobs:   lru.New(16),
		Tracker: tracker,
		Breaker: breaker,
	})
	return testDispatcher{Dispatcher: d, tracker: tracker, cache: c}
}
