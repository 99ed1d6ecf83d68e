package server

import (
	"sync"
	"time"
)

// Gate throttles persistence per source: at most one stored event per source
// every interval. Broadcast is never gated, only the durable write.
//
// The per-source map grows with the number of distinct sources. That is fine
// for the operator-controlled detector fleets this serves; attacker-chosen
// source ids would need a bounded map instead.
type Gate struct {
	mu       sync.Mutex
	interval time.Duration
	lastSave map[string]time.Time
}

// NewGate returns a gate with the given minimum save interval.
func NewGate(interval time.Duration) *Gate {
	return &Gate{
		interval: interval,
		lastSave: make(map[string]time.Time),
	}
}

// Accept reports whether an event from sourceID at time now should be
// persisted, and on acceptance records now as the source's last save time.
// Check and update are one atomic step, so concurrent submissions from the
// same source cannot both pass inside one interval. The first event from a
// new source is always accepted.
func (g *Gate) Accept(sourceID string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.lastSave[sourceID]; ok && now.Sub(last) < g.interval {
		return false
	}
	g.lastSave[sourceID] = now
	return true
}
