package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	cfotel "github.com/Strob0t/repo-oracle/internal/adapter/otel"
	"github.com/Strob0t/repo-oracle/internal/domain"
	"github.com/Strob0t/repo-oracle/internal/domain/ratelimit"
	"github.com/Strob0t/repo-oracle/internal/domain/repo"
	"github.com/Strob0t/repo-oracle/internal/port/cache"
	"github.com/Strob0t/repo-oracle/internal/port/ghapi"
	"github.com/Strob0t/repo-oracle/internal/resilience"
)

// DispatcherConfig wires a Dispatcher. Nil caches disable caching; a nil
// breaker lets every call through.
type DispatcherConfig struct {
	Client  *Client
	Cache   cache.Cache
	TTL     time.Duration
	Blobs   cache.Cache
	Tracker *ratelimit.Tracker
	Breaker *resilience.Breaker
	Metrics *cfotel.Metrics
}

// Dispatcher is the single outbound path to GitHub. It serves GETs from the
// response cache, collapses concurrent identical misses, keeps the rate
// tracker current, and never retries.
type Dispatcher struct {
	client  *Client
	cache   cache.Cache
	ttl     time.Duration
	blobs   cache.Cache
	tracker *ratelimit.Tracker
	breaker *resilience.Breaker
	metrics *cfotel.Metrics

	// mu guards cache lookups and the paired (tracker update, cache write).
	mu     sync.Mutex
	flight singleflight.Group
}

var (
	_ ghapi.API     = (*Dispatcher)(nil)
	_ ghapi.Monitor = (*Dispatcher)(nil)
)

// cachedPage is the serialized form of a page in the response cache.
type cachedPage struct {
	Body    json.RawMessage `json:"body"`
	HasNext bool            `json:"has_next"`
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Tracker == nil {
		cfg.Tracker = ratelimit.NewTracker()
	}
	return &Dispatcher{
		client:  cfg.Client,
		cache:   cfg.Cache,
		ttl:     cfg.TTL,
		blobs:   cfg.Blobs,
		tracker: cfg.Tracker,
		breaker: cfg.Breaker,
		metrics: cfg.Metrics,
	}
}

// Get returns the page for endpoint and params.
func (d *Dispatcher) Get(ctx context.Context, endpoint string, params url.Values) (*ghapi.Page, error) {
	key := CacheKey(endpoint, params)
	ctx, span := cfotel.StartUpstreamSpan(ctx, endpoint, key)
	defer span.End()

	if page, ok := d.lookup(ctx, key); ok {
		cfotel.MarkCache(span, true)
		d.metrics.RecordCache(ctx, true)
		return page, nil
	}
	cfotel.MarkCache(span, false)
	d.metrics.RecordCache(ctx, false)

	if !d.client.HasToken() {
		return nil, domain.ErrUnauthenticated
	}

	// Only the caller that runs the fetch sets led; joined callers receive
	// a page they did not request and report it as cached.
	led := false
	v, err := d.join(ctx, endpoint, key, func(fctx context.Context) (any, error) {
		led = true
		return d.fetchPage(fctx, endpoint, canonical(params), key)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	page := *v.(*ghapi.Page)
	page.FromCache = !led
	return &page, nil
}

// join runs fn once per key across concurrent callers, on a context detached
// from the leader's cancellation. Each caller stops waiting when its own ctx
// ends.
func (d *Dispatcher) join(ctx context.Context, endpoint, key string, fn func(context.Context) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.TransportError{Path: endpoint, Err: err}
	}
	fctx := context.WithoutCancel(ctx)
	ch := d.flight.DoChan(key, func() (any, error) { return fn(fctx) })
	select {
	case <-ctx.Done():
		return nil, &domain.TransportError{Path: endpoint, Err: ctx.Err()}
	case res := <-ch:
		return res.Val, res.Err
	}
}

func (d *Dispatcher) lookup(ctx context.Context, key string) (*ghapi.Page, bool) {
	if d.cache == nil {
		return nil, false
	}

	d.mu.Lock()
	data, found, err := d.cache.Get(ctx, key)
	d.mu.Unlock()
	if err != nil {
		slog.WarnContext(ctx, "response cache get failed", "key", key, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	var entry cachedPage
	if err := json.Unmarshal(data, &entry); err != nil {
		slog.WarnContext(ctx, "discarding unreadable cache entry", "key", key, "error", err)
		return nil, false
	}
	return &ghapi.Page{Body: entry.Body, HasNext: entry.HasNext, FromCache: true}, true
}

func (d *Dispatcher) fetchPage(ctx context.Context, endpoint string, params url.Values, key string) (*ghapi.Page, error) {
	resp, err := d.live(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	if !json.Valid(resp.body) {
		d.observe(resp.header)
		return nil, fmt.Errorf("github %s: %w", endpoint, domain.ErrMalformedResponse)
	}

	page := &ghapi.Page{
		Body:    json.RawMessage(resp.body),
		HasNext: hasNextLink(resp.header.Get("Link")),
	}
	d.commit(ctx, key, page, resp.header)
	return page, nil
}

// commit updates the tracker and stores the page as one step.
func (d *Dispatcher) commit(ctx context.Context, key string, page *ghapi.Page, header http.Header) {
	data, err := json.Marshal(cachedPage{Body: page.Body, HasNext: page.HasNext})

	d.mu.Lock()
	defer d.mu.Unlock()

	d.tracker.Update(header)
	if d.cache == nil || err != nil {
		return
	}
	if err := d.cache.Set(ctx, key, data, d.ttl); err != nil {
		slog.WarnContext(ctx, "response cache set failed", "key", key, "error", err)
	}
}

func (d *Dispatcher) observe(header http.Header) {
	d.mu.Lock()
	d.tracker.Update(header)
	d.mu.Unlock()
}

// live performs one outbound request through the breaker. Non-2xx responses
// update the tracker before they are classified.
func (d *Dispatcher) live(ctx context.Context, endpoint string, params url.Values) (*response, error) {
	var resp *response
	start := time.Now()

	err := d.breaker.Execute(func() error {
		r, err := d.client.get(ctx, endpoint, params)
		if err != nil {
			return err
		}
		resp = r
		if r.status < 200 || r.status > 299 {
			d.observe(r.header)
			return classify(endpoint, r)
		}
		return nil
	})

	status := 0
	if resp != nil {
		status = resp.status
	}
	d.metrics.RecordUpstream(ctx, status, time.Since(start).Seconds())

	if err == nil {
		return resp, nil
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, &domain.TransportError{Path: endpoint, Err: err}
	}

	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) && upstream.Kind == domain.SubKindRateLimited && upstream.ResetAt.IsZero() {
		if snap := d.tracker.Snapshot(); snap.Known {
			upstream.ResetAt = snap.ResetAt
		}
	}
	slog.WarnContext(ctx, "github request failed",
		"endpoint", endpoint,
		"status", status,
		"error", err,
	)
	return nil, err
}

// Blob returns the decoded content of the blob sha in ref.
func (d *Dispatcher) Blob(ctx context.Context, ref repo.Ref, sha string) ([]byte, error) {
	key := "blob:" + sha
	if d.blobs != nil {
		if data, found, err := d.blobs.Get(ctx, key); err == nil && found {
			return data, nil
		}
	}
	if !d.client.HasToken() {
		return nil, domain.ErrUnauthenticated
	}

	endpoint := fmt.Sprintf("/repos/%s/%s/git/blobs/%s",
		url.PathEscape(ref.Owner), url.PathEscape(ref.Name), url.PathEscape(sha))

	v, err := d.join(ctx, endpoint, key, func(fctx context.Context) (any, error) {
		resp, err := d.live(fctx, endpoint, nil)
		if err != nil {
			return nil, err
		}
		d.observe(resp.header)

		data, err := decodeBlob(resp.body)
		if err != nil {
			return nil, fmt.Errorf("github %s: %w: %v", endpoint, domain.ErrMalformedResponse, err)
		}
		if d.blobs != nil {
			if err := d.blobs.Set(fctx, key, data, 0); err != nil {
				slog.WarnContext(fctx, "blob cache set failed", "sha", sha, "error", err)
			}
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func decodeBlob(body []byte) ([]byte, error) {
	var wire struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, err
	}
	switch wire.Encoding {
	case "base64":
		// GitHub wraps base64 content at 60 columns.
		return base64.StdEncoding.DecodeString(strings.ReplaceAll(wire.Content, "\n", ""))
	case "utf-8", "":
		return []byte(wire.Content), nil
	default:
		return nil, fmt.Errorf("unsupported blob encoding %q", wire.Encoding)
	}
}

// Probe performs GET /rate_limit with no cache, breaker or tracker
// involvement. Any HTTP answer counts as reachable; 5xx is reported as an
// error alongside reachable=true.
func (d *Dispatcher) Probe(ctx context.Context) (bool, error) {
	resp, err := d.client.get(ctx, "/rate_limit", nil)
	if err != nil {
		return false, err
	}
	if resp.status >= 500 {
		return true, classify("/rate_limit", resp)
	}
	return true, nil
}

// RateStatus returns the last observed quota.
func (d *Dispatcher) RateStatus() ratelimit.Status { return d.tracker.Snapshot() }

// HasToken reports whether a GitHub token is configured.
func (d *Dispatcher) HasToken() bool { return d.client.HasToken() }

// CachedKeys returns the live response cache entry count, or 0 when the
// cache cannot report it.
func (d *Dispatcher) CachedKeys() int {
	counter, ok := d.cache.(cache.Counter)
	if !ok {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return counter.Len()
}

// BreakerState returns closed, open or half_open.
func (d *Dispatcher) BreakerState() string { return d.breaker.State() }
