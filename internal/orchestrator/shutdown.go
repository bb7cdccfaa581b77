package orchestrator

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// ShutdownTimeout bounds how long a caller should wait on killAll's
// effects landing before giving up and exiting anyway.
const ShutdownTimeout = 30 * time.Second

// withSignalHandling wraps ctx so that a SIGINT or SIGTERM cancels the
// returned context exactly once, the same signal-to-cancellation bridge
// the teacher's controller installs around its run loop.
func (o *Orchestrator) withSignalHandling(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			o.logger.Emit("orchestrator", "received signal %v, killing all agents and flushing state", sig)
			o.killAll()
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// killAll terminates every live subprocess and flushes state.json and
// status.json before returning, so a SIGINT never loses the run's last
// recorded progress. Safe to call more than once; only the first call
// does anything.
func (o *Orchestrator) killAll() {
	o.shutdownOnce.Do(func() {
		o.runtime.KillAll()
		if o.State != nil {
			_ = o.saveState()
			o.status.Flush(o.snapshot())
		}
	})
}
