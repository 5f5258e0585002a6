package services

import (
	"sync"
	"time"
)

// dedupGuard holds the in-memory idempotency state of one billing service
// instance: which subscriptions have a charge in flight, and when the last
// charge for each was started. Process-lifetime only, never persisted.
// Owning the state per instance keeps tests independent; there are no
// package-level maps.
type dedupGuard struct {
	mu          sync.Mutex
	inFlight    map[string]bool
	lastStarted map[string]time.Time
}

func newDedupGuard() *dedupGuard {
	return &dedupGuard{
		inFlight:    make(map[string]bool),
		lastStarted: make(map[string]time.Time),
	}
}

// acquire takes the per-subscription processing lock. It fails with
// ReasonAlreadyProcessing when a charge is in flight and with
// ReasonProcessedRecently when one started inside the recency window.
// On success the caller must release, on every path.
func (g *dedupGuard) acquire(subscriptionID string, now time.Time, recency time.Duration) ChargeReason {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inFlight[subscriptionID] {
		return ReasonAlreadyProcessing
	}
	if started, ok := g.lastStarted[subscriptionID]; ok && now.Sub(started) < recency {
		return ReasonProcessedRecently
	}

	g.inFlight[subscriptionID] = true
	return ""
}

// markStarted stamps the recency timestamp. Called only once the charge is
// actually going to run, so rejected attempts do not mask the real reason
// of the next attempt.
func (g *dedupGuard) markStarted(subscriptionID string, now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastStarted[subscriptionID] = now
}

// release drops the in-flight lock. Deferred by the caller so a failed
// charge never wedges the subscription.
func (g *dedupGuard) release(subscriptionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, subscriptionID)
}
