package orchestrator

import (
	"context"
	"os"
	"strings"
	"time"
)

// GuidanceWatcher polls a single rendezvous file for an inbound operator
// message, consuming it atomically (read, then unlink) so the same
// message is never delivered twice. Per the design notes, this is a small
// poller paired with a notification channel rather than the orchestrator
// polling inline, and PollOnce is exported so a test can drive the 5 s
// cadence deterministically instead of waiting on a real ticker.
type GuidanceWatcher struct {
	path     string
	interval time.Duration
	ch       chan string
}

// NewGuidanceWatcher builds a GuidanceWatcher over path, polling every
// interval once Run starts.
func NewGuidanceWatcher(path string, interval time.Duration) *GuidanceWatcher {
	return &GuidanceWatcher{path: path, interval: interval, ch: make(chan string, 1)}
}

// Messages returns the channel a consumed guidance message is delivered
// on.
func (g *GuidanceWatcher) Messages() <-chan string {
	return g.ch
}

// Run polls on the configured interval until ctx is cancelled.
func (g *GuidanceWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.PollOnce()
		}
	}
}

// PollOnce checks for guidance.txt once, consuming and delivering it if
// present. A read error (including file-not-found, the common case) is
// silently treated as "nothing to deliver"; a failed unlink is treated as
// a race with another consumer and the read content is discarded rather
// than risking a double delivery.
func (g *GuidanceWatcher) PollOnce() {
	data, err := os.ReadFile(g.path)
	if err != nil {
		return
	}
	if err := os.Remove(g.path); err != nil {
		return
	}

	msg := strings.TrimSpace(string(data))
	if msg == "" {
		return
	}

	select {
	case g.ch <- msg:
	default:
		// Previous message not yet consumed; drop rather than block the poller.
	}
}
