package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Strob0t/repo-oracle/internal/domain/ratelimit"
	"github.com/Strob0t/repo-oracle/internal/domain/report"
	"github.com/Strob0t/repo-oracle/internal/domain/repo"
	"github.com/Strob0t/repo-oracle/internal/port/ghapi"
)

const probeTimeout = 5 * time.Second

// HealthService reports token, reachability, cache and quota state.
type HealthService struct {
	monitor ghapi.Monitor
	session *repo.Session
	now     func() time.Time
}

// NewHealthService creates a new HealthService.
func NewHealthService(monitor ghapi.Monitor, session *repo.Session) *HealthService {
	return &HealthService{monitor: monitor, session: session, now: time.Now}
}

// Check probes GitHub and snapshots local state. It never fails; problems
// show up as status "degraded".
func (s *HealthService) Check(ctx context.Context) *report.Health {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	h := &report.Health{
		HasToken:   s.monitor.HasToken(),
		CachedKeys: s.monitor.CachedKeys(),
		Breaker:    s.monitor.BreakerState(),
		RateLimit:  RateLimitReport(s.monitor.RateStatus()),
	}

	reachable, err := s.monitor.Probe(probeCtx)
	h.Reachable = reachable
	if err != nil {
		h.ProbeError = err.Error()
		slog.WarnContext(ctx, "github probe failed", "error", err)
	}

	if ref, ok := s.session.Current(); ok {
		h.Connected = &ref
	}

	h.Status = "ok"
	if !h.HasToken || !h.Reachable || h.Breaker == "open" || s.monitor.RateStatus().Exhausted(s.now()) {
		h.Status = "degraded"
	}
	return h
}

// RateLimitReport renders a tracker snapshot, reporting "unknown" rather
// than zeros before the first live response.
func RateLimitReport(st ratelimit.Status) report.RateLimit {
	if !st.Known {
		return report.RateLimit{State: "unknown"}
	}
	limit, remaining, used := st.Limit, st.Remaining, st.Used
	reset := st.ResetAt.UTC()
	return report.RateLimit{
		State:     "known",
		Limit:     &limit,
		Remaining: &remaining,
		Used:      &used,
		Resource:  st.Resource,
		ResetAt:   &reset,
	}
}
