// Package ratelimit tracks the GitHub quota reported by response headers.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Status is the last-observed quota. Known is false until a live response
// carrying rate-limit headers has been seen.
type Status struct {
	Known      bool      `json:"known"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	Used       int       `json:"used"`
	Resource   string    `json:"resource,omitempty"`
	ResetAt    time.Time `json:"reset_at"`
	ObservedAt time.Time `json:"observed_at"`
}

// Exhausted reports whether the quota is known to be used up and the reset
// time lies after now.
func (s Status) Exhausted(now time.Time) bool {
	return s.Known && s.Remaining <= 0 && s.ResetAt.After(now)
}

// Tracker holds the most recent Status. It is overwritten wholesale on each
// update and never decremented speculatively.
type Tracker struct {
	mu     sync.RWMutex
	status Status
	now    func() time.Time // for testing
}

// NewTracker returns a tracker in the unknown state.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Update records the quota from GitHub response headers. Headers without
// X-RateLimit-Remaining and X-RateLimit-Reset, or with unparseable values,
// leave the tracker unchanged. Returns whether the tracker changed.
func (t *Tracker) Update(header http.Header) bool {
	status, ok := ParseHeader(header)
	if !ok {
		return false
	}
	t.Set(status)
	return true
}

// Set overwrites the tracked status.
func (t *Tracker) Set(status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	status.Known = true
	if status.ObservedAt.IsZero() {
		status.ObservedAt = t.now()
	}
	t.status = status
}

// Snapshot returns a copy of the current status.
func (t *Tracker) Snapshot() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// ParseHeader extracts a Status from GitHub's X-RateLimit-* headers.
// Limit and Used are optional; Remaining and Reset are required.
func ParseHeader(header http.Header) (Status, bool) {
	remainingStr := header.Get("X-RateLimit-Remaining")
	resetStr := header.Get("X-RateLimit-Reset")
	if remainingStr == "" || resetStr == "" {
		return Status{}, false
	}

	remaining, err := strconv.Atoi(remainingStr)
	if err != nil {
		return Status{}, false
	}
	resetUnix, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return Status{}, false
	}

	status := Status{
		Known:     true,
		Remaining: remaining,
		ResetAt:   time.Unix(resetUnix, 0).UTC(),
		Resource:  header.Get("X-RateLimit-Resource"),
	}
	if limit, err := strconv.Atoi(header.Get("X-RateLimit-Limit")); err == nil {
		status.Limit = limit
	}
	if used, err := strconv.Atoi(header.Get("X-RateLimit-Used")); err == nil {
		status.Used = used
	}
	return status, true
}
