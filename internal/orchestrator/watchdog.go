package orchestrator

import (
	"sync"
	"time"
)

// WatchdogAction is one of the four dispositions a stalled agent can
// receive.
type WatchdogAction string

const (
	ActionRespawn        WatchdogAction = "respawn"
	ActionInjectGuidance WatchdogAction = "inject_guidance"
	ActionContinue       WatchdogAction = "continue"
	ActionEscalateToUser WatchdogAction = "escalate_to_user"
)

// StallThreshold is how long an agent may run without the orchestrator
// observing a fresh line of output before it is considered stalled.
const StallThreshold = 15 * time.Minute

// Watchdog tracks, per agent id, the time of its most recent observed
// output line and decides what to do about an agent that has gone quiet:
// a first stall gets a guidance nudge, a continued stall is respawned
// through the handoff path, and a stall surviving a respawn escalates to
// a human. An agent the watchdog has never seen is assumed healthy.
type Watchdog struct {
	mu           sync.Mutex
	lastSeen     map[string]time.Time
	stalledSince map[string]time.Time
	respawned    map[string]bool
}

// NewWatchdog constructs an empty Watchdog.
func NewWatchdog() *Watchdog {
	return &Watchdog{
		lastSeen:     make(map[string]time.Time),
		stalledSince: make(map[string]time.Time),
		respawned:    make(map[string]bool),
	}
}

// Touch records fresh progress for an agent, clearing any stall state.
func (w *Watchdog) Touch(agentID string, at time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastSeen[agentID] = at
	delete(w.stalledSince, agentID)
	delete(w.respawned, agentID)
}

// Reset drops all tracked state for an agent id, used once it is torn
// down so a future reuse of the same id starts from a clean baseline.
func (w *Watchdog) Reset(agentID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.lastSeen, agentID)
	delete(w.stalledSince, agentID)
	delete(w.respawned, agentID)
}

// Decide evaluates one agent's liveness as of now and returns the action
// the orchestrator should take.
func (w *Watchdog) Decide(agentID string, now time.Time) WatchdogAction {
	w.mu.Lock()
	defer w.mu.Unlock()

	last, ok := w.lastSeen[agentID]
	if !ok || now.Sub(last) < StallThreshold {
		return ActionContinue
	}

	since, stalled := w.stalledSince[agentID]
	if !stalled {
		w.stalledSince[agentID] = now
		return ActionInjectGuidance
	}

	if !w.respawned[agentID] {
		if now.Sub(since) >= StallThreshold {
			w.respawned[agentID] = true
			return ActionRespawn
		}
		return ActionInjectGuidance
	}

	return ActionEscalateToUser
}
