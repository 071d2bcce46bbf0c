package scheduler

import "sync"

// HealthStatus summarises recent results of a per-session operation.
type HealthStatus string

const (
	StatusHealthy HealthStatus = "healthy"
	StatusFailing HealthStatus = "failing"
)

// failureThreshold is the number of consecutive failures after which a
// session is reported as failing.
const failureThreshold = 3

type sessionHealth struct {
	failures int
	emitted  HealthStatus
}

// health tracks consecutive failures per session so that a persistently
// broken session is logged once on the way down and once on recovery
// instead of on every cycle.
type health struct {
	mu        sync.Mutex
	threshold int
	sessions  map[string]*sessionHealth
}

func newHealth(threshold int) *health {
	return &health{
		threshold: threshold,
		sessions:  make(map[string]*sessionHealth),
	}
}

func (h *health) entry(name string) *sessionHealth {
	e, ok := h.sessions[name]
	if !ok {
		e = &sessionHealth{emitted: StatusHealthy}
		h.sessions[name] = e
	}
	return e
}

// recordFailure counts a failure and reports whether the session just
// crossed into failing.
func (h *health) recordFailure(name string) (failures int, changed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e := h.entry(name)
	e.failures++
	if e.failures >= h.threshold && e.emitted != StatusFailing {
		e.emitted = StatusFailing
		return e.failures, true
	}
	return e.failures, false
}

// recordSuccess resets the counter and reports whether the session was
// failing before.
func (h *health) recordSuccess(name string) (recovered bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.sessions[name]
	if !ok {
		return false
	}
	recovered = e.emitted == StatusFailing
	e.failures = 0
	e.emitted = StatusHealthy
	return recovered
}

func (h *health) status(name string) HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.sessions[name]
	if !ok || e.failures < h.threshold {
		return StatusHealthy
	}
	return StatusFailing
}
