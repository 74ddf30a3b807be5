package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/Strob0t/repo-oracle/internal/domain"
	"github.com/Strob0t/repo-oracle/internal/domain/ratelimit"
	"github.com/Strob0t/repo-oracle/internal/domain/repo"
	"github.com/Strob0t/repo-oracle/internal/port/ghapi"
)

var (
	_ ghapi.API     = (*mockAPI)(nil)
	_ ghapi.Monitor = (*mockMonitor)(nil)
)

// mockAPI serves canned pages keyed by endpoint and page number, and blobs
// keyed by SHA. Unknown endpoints return a 404 UpstreamError.
type mockAPI struct {
	mu sync.Mutex

	// pages[endpoint][n-1] is the body of page n. Every page but the last
	// advertises rel="next".
	pages    map[string][]string
	errs     map[string]error
	blobs    map[string]string
	blobErrs map[string]error

	calls     []call
	blobCalls []string
}

type call struct {
	endpoint string
	params   url.Values
}

func newMockAPI() *mockAPI {
	return &mockAPI{
		pages:    make(map[string][]string),
		errs:     make(map[string]error),
		blobs:    make(map[string]string),
		blobErrs: make(map[string]error),
	}
}

func (m *mockAPI) Get(_ context.Context, endpoint string, params url.Values) (*ghapi.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, call{endpoint: endpoint, params: params})
	if err, ok := m.errs[endpoint]; ok {
		return nil, err
	}

	bodies, ok := m.pages[endpoint]
	if !ok {
		return nil, &domain.UpstreamError{StatusCode: 404, Path: endpoint, Kind: domain.SubKindNotFound}
	}

	n := 1
	if p := params.Get("page"); p != "" {
		n, _ = strconv.Atoi(p)
	}
	if n > len(bodies) {
		return &ghapi.Page{Body: json.RawMessage(`[]`)}, nil
	}
	return &ghapi.Page{Body: json.RawMessage(bodies[n-1]), HasNext: n < len(bodies)}, nil
}

func (m *mockAPI) Blob(_ context.Context, _ repo.Ref, sha string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blobCalls = append(m.blobCalls, sha)
	if err, ok := m.blobErrs[sha]; ok {
		return nil, err
	}
	content, ok := m.blobs[sha]
	if !ok {
		return nil, &domain.UpstreamError{StatusCode: 404, Path: "blob " + sha, Kind: domain.SubKindNotFound}
	}
	return []byte(content), nil
}

func (m *mockAPI) endpoints() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.calls))
	for _, c := range m.calls {
		out = append(out, c.endpoint)
	}
	return out
}

func (m *mockAPI) lastCall() call {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return call{}
	}
	return m.calls[len(m.calls)-1]
}

// jsonList marshals v for use as a page body.
func jsonList(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("marshal fixture: %v", err))
	}
	return string(b)
}

type mockMonitor struct {
	reachable bool
	probeErr  error
	status    ratelimit.Status
	hasToken  bool
	keys      int
	breaker   string
}

func (m *mockMonitor) Probe(context.Context) (bool, error) { return m.reachable, m.probeErr }
func (m *mockMonitor) RateStatus() ratelimit.Status        { return m.status }
func (m *mockMonitor) HasToken() bool                      { return m.hasToken }
func (m *mockMonitor) CachedKeys() int                     { return m.keys }
func (m *mockMonitor) BreakerState() string                { return m.breaker }
