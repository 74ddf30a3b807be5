package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "repo-oracle"

// Metrics holds all repo-oracle metric instruments. Without a configured
// MeterProvider the instruments are no-ops.
type Metrics struct {
	ToolCalls        metric.Int64Counter
	ToolErrors       metric.Int64Counter
	ToolDuration     metric.Float64Histogram
	CacheHits        metric.Int64Counter
	CacheMisses      metric.Int64Counter
	CacheEvictions   metric.Int64Counter
	UpstreamRequests metric.Int64Counter
	UpstreamDuration metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.ToolCalls, err = meter.Int64Counter("repo_oracle.tool.calls",
		metric.WithDescription("Number of MCP tool calls"))
	if err != nil {
		return nil, err
	}

	m.ToolErrors, err = meter.Int64Counter("repo_oracle.tool.errors",
		metric.WithDescription("Number of MCP tool calls that returned an error result"))
	if err != nil {
		return nil, err
	}

	m.ToolDuration, err = meter.Float64Histogram("repo_oracle.tool.duration_seconds",
		metric.WithDescription("MCP tool call duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.CacheHits, err = meter.Int64Counter("repo_oracle.cache.hits",
		metric.WithDescription("Response cache hits"))
	if err != nil {
		return nil, err
	}

	m.CacheMisses, err = meter.Int64Counter("repo_oracle.cache.misses",
		metric.WithDescription("Response cache misses"))
	if err != nil {
		return nil, err
	}

	m.CacheEvictions, err = meter.Int64Counter("repo_oracle.cache.evictions",
		metric.WithDescription("Response cache entries evicted for capacity or expiry"))
	if err != nil {
		return nil, err
	}

	m.UpstreamRequests, err = meter.Int64Counter("repo_oracle.github.requests",
		metric.WithDescription("Live GitHub API requests"))
	if err != nil {
		return nil, err
	}

	m.UpstreamDuration, err = meter.Float64Histogram("repo_oracle.github.duration_seconds",
		metric.WithDescription("GitHub API request duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// NopMetrics returns instruments bound to the global provider, ignoring
// creation errors. Intended for tests and for callers that treat metrics as
// optional.
func NopMetrics() *Metrics {
	m, err := NewMetrics()
	if err != nil {
		return &Metrics{}
	}
	return m
}

// RecordTool records one tool call.
func (m *Metrics) RecordTool(ctx context.Context, tool string, seconds float64, errKind string) {
	if m == nil || m.ToolCalls == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tool", tool))
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolDuration.Record(ctx, seconds, attrs)
	if errKind != "" {
		m.ToolErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("error.kind", errKind),
		))
	}
}

// RecordCache records a response cache lookup.
func (m *Metrics) RecordCache(ctx context.Context, hit bool) {
	if m == nil || m.CacheHits == nil {
		return
	}
	if hit {
		m.CacheHits.Add(ctx, 1)
		return
	}
	m.CacheMisses.Add(ctx, 1)
}

// RecordEviction records a response cache eviction.
func (m *Metrics) RecordEviction(ctx context.Context) {
	if m == nil || m.CacheEvictions == nil {
		return
	}
	m.CacheEvictions.Add(ctx, 1)
}

// RecordUpstream records one live GitHub request. status is 0 for
// transport failures.
func (m *Metrics) RecordUpstream(ctx context.Context, status int, seconds float64) {
	if m == nil || m.UpstreamRequests == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Int("http.status_code", status))
	m.UpstreamRequests.Add(ctx, 1, attrs)
	m.UpstreamDuration.Record(ctx, seconds, attrs)
}
