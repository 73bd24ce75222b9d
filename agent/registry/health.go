package registry

import (
	"sync"
	"time"

	contractx "github.com/chayanin/docrouter/agent/contract"
)

const (
	unavailableAfterFailures = 3
	healthyAfterSuccesses    = 2
	probeCooldown            = 30 * time.Second
)

// healthTracker derives a role's health from its recent invocation outcomes.
// Repeated failures mark the role unavailable; an unavailable role is
// fail-fast rejected until the cooldown elapses, after which one probe call is
// let through.
type healthTracker struct {
	mu          sync.Mutex
	consecFails int
	consecOks   int
	lastFailure time.Time
}

func (h *healthTracker) recordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecOks++
	if h.consecOks >= healthyAfterSuccesses {
		h.consecFails = 0
	}
}

func (h *healthTracker) recordFailure(now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecOks = 0
	h.consecFails++
	h.lastFailure = now
}

func (h *healthTracker) state() contractx.Health {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stateLocked()
}

func (h *healthTracker) stateLocked() contractx.Health {
	switch {
	case h.consecFails >= unavailableAfterFailures:
		return contractx.HealthUnavailable
	case h.consecFails > 0:
		return contractx.HealthDegraded
	default:
		return contractx.HealthHealthy
	}
}

// admit reports whether an invocation may proceed right now.
func (h *healthTracker) admit(now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stateLocked() != contractx.HealthUnavailable {
		return true
	}
	return now.Sub(h.lastFailure) >= probeCooldown
}
