// Package context implements ContextWatcher: per-agent token accounting
// against a configured context limit, firing ordered one-shot threshold
// notifications and requesting a handoff exactly once per agent lifetime.
// Grounded on the context-budget awareness already present in
// the teacher's judge.go (per-invocation character budgeting) and
// controller.go (per-agent cumulative token tallying), generalized here
// into an explicit threshold-series state machine.
package context

import (
	"math"
	"strconv"
	"sync"
)

// DefaultContextLimit is the default per-agent token budget.
const DefaultContextLimit = 200_000

// thresholds is the ordered, fixed series of percentage points at which a
// notification fires. The last entry is also the handoff threshold.
var thresholds = []int{40, 50, 60, 70, 75}

// handoffThreshold is the threshold at which a handoff is additionally
// requested, exactly once per agent lifetime.
var handoffThreshold = thresholds[len(thresholds)-1]

// CannedMessage returns the stock notice stamped onto an agent's next
// prompt when threshold t is reached, for indefinite-mode operation.
func CannedMessage(threshold int) string {
	return "NOTE: you have used " + strconv.Itoa(threshold) +
		"% of your context budget. Wrap up outstanding work efficiently."
}

type agentState struct {
	limit           int
	total           int
	nextThresholdIx int  // index into thresholds of the next un-notified threshold
	handoffFired    bool
}

// Watcher tracks per-agent accumulated token usage and fires threshold and
// handoff notifications through the two callback hooks supplied at
// construction — kept as callbacks rather than a channel because, unlike
// AgentSession's event stream, there is no subprocess I/O to interleave
// with; a direct call into the orchestrator is simpler and exercises no
// concurrency the single mutex below doesn't already serialize.
type Watcher struct {
	mu     sync.Mutex
	limit  int
	agents map[string]*agentState

	onThreshold func(agentID string, threshold int, message string)
	onHandoff   func(agentID string)
}

// New constructs a Watcher with the given default per-agent limit (0 uses
// DefaultContextLimit) and the two notification callbacks.
func New(limit int, onThreshold func(agentID string, threshold int, message string), onHandoff func(agentID string)) *Watcher {
	if limit <= 0 {
		limit = DefaultContextLimit
	}
	return &Watcher{
		limit:       limit,
		agents:      make(map[string]*agentState),
		onThreshold: onThreshold,
		onHandoff:   onHandoff,
	}
}

// Register begins tracking an agent at zero accumulated usage.
func (w *Watcher) Register(agentID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.agents[agentID] = &agentState{limit: w.limit}
}

// Unregister stops tracking an agent.
func (w *Watcher) Unregister(agentID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.agents, agentID)
}

// Update recomputes percentUsed for the agent's new accumulated token
// total. Thresholds fire in strictly increasing order, at most once each;
// re-entering a lower band (a replacement agent with lower usage, or a
// reset) never re-fires an already-passed threshold for that agent's
// current lifetime. At the final threshold, handoffRequired additionally
// fires exactly once.
func (w *Watcher) Update(agentID string, total int) {
	w.mu.Lock()
	st, ok := w.agents[agentID]
	if !ok {
		st = &agentState{limit: w.limit}
		w.agents[agentID] = st
	}
	st.total = total
	percentUsed := int(math.Round(100 * float64(total) / float64(st.limit)))

	var toFire []int
	for st.nextThresholdIx < len(thresholds) && percentUsed >= thresholds[st.nextThresholdIx] {
		toFire = append(toFire, thresholds[st.nextThresholdIx])
		st.nextThresholdIx++
	}
	fireHandoff := false
	if !st.handoffFired && st.nextThresholdIx >= len(thresholds) {
		st.handoffFired = true
		fireHandoff = true
	}
	w.mu.Unlock()

	for _, t := range toFire {
		if w.onThreshold != nil {
			w.onThreshold(agentID, t, CannedMessage(t))
		}
	}
	if fireHandoff && w.onHandoff != nil {
		w.onHandoff(agentID)
	}
}

// NeedsHandoff reports the one-shot handoff latch for an agent.
func (w *Watcher) NeedsHandoff(agentID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.agents[agentID]
	return ok && st.handoffFired
}

// Reset clears an agent's counters and latches, used after a replacement
// agent takes over the role.
func (w *Watcher) Reset(agentID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.agents[agentID] = &agentState{limit: w.limit}
}

// PercentUsed returns the current percentage of budget consumed, for
// status reporting.
func (w *Watcher) PercentUsed(agentID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.agents[agentID]
	if !ok || st.limit == 0 {
		return 0
	}
	return int(math.Round(100 * float64(st.total) / float64(st.limit)))
}
