package phases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kream0/autonoma-sub001/internal/agent"
	"github.com/kream0/autonoma-sub001/internal/memory"
	"github.com/kream0/autonoma-sub001/internal/protocol"
	"github.com/kream0/autonoma-sub001/internal/queue"
	"github.com/kream0/autonoma-sub001/internal/retry"
	"github.com/kream0/autonoma-sub001/internal/state"
	"github.com/kream0/autonoma-sub001/internal/verify"
)

// Development is the main scheduler: for every batch starting at
// currentBatchIndex, it spawns exactly as many developers as the batch's
// parallelism calls for, runs its pending tasks to completion (work-
// stealing when parallel, straight-line otherwise), tears the batch's
// developers down, and marks the batch complete iff every task completed.
func Development(ctx context.Context, pc *PhaseContext) error {
	for bi := pc.State.CurrentBatchIndex; bi < len(pc.State.Batches); bi++ {
		pc.State.CurrentBatchIndex = bi
		batch := &pc.State.Batches[bi]

		pending := pendingTasks(batch)
		if len(pending) == 0 {
			batch.Status = batchOutcome(batch)
			continue
		}

		developerCount := 1
		if batch.Parallel {
			developerCount = len(pending)
			if batch.MaxParallel > 0 && batch.MaxParallel < developerCount {
				developerCount = batch.MaxParallel
			}
		}

		developers, err := spawnDevelopers(pc, batch.BatchID, developerCount)
		if err != nil {
			return fmt.Errorf("phases: development: spawning batch %s: %w", batch.BatchID, err)
		}

		batch.Status = "running"
		if err := pc.save(); err != nil {
			pc.Runtime.CleanupDevelopers(developers)
			return err
		}

		var runErr error
		if batch.Parallel && developerCount > 1 {
			runErr = runBatchParallel(ctx, pc, batch, developers)
		} else {
			runErr = runBatchSequential(ctx, pc, batch, developers[0])
		}

		pc.Runtime.CleanupDevelopers(developers)

		if runErr != nil {
			batch.Status = "failed"
			return fmt.Errorf("phases: development: batch %s: %w", batch.BatchID, runErr)
		}
		batch.Status = batchOutcome(batch)
		if err := pc.save(); err != nil {
			return err
		}
	}

	pc.State.CompletePhase("development")
	pc.State.Phase = "testing"
	return pc.save()
}

func pendingTasks(b *state.Batch) []*state.Task {
	var out []*state.Task
	for i := range b.Tasks {
		if b.Tasks[i].Status == "pending" || b.Tasks[i].Status == "running" {
			out = append(out, &b.Tasks[i])
		}
	}
	return out
}

func batchOutcome(b *state.Batch) string {
	for i := range b.Tasks {
		if b.Tasks[i].Status != "complete" {
			return "failed"
		}
	}
	return "complete"
}

func spawnDevelopers(pc *PhaseContext, batchID string, n int) ([]*agent.Session, error) {
	sessions := make([]*agent.Session, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("developer-%s-%d", batchID, i+1)
		sess, err := pc.Runtime.SpawnAgent(agent.RoleDeveloper, id)
		if err != nil {
			pc.Runtime.CleanupDevelopers(sessions)
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// runBatchSequential executes a batch's pending tasks in declared order
// on a single developer.
func runBatchSequential(ctx context.Context, pc *PhaseContext, b *state.Batch, dev *agent.Session) error {
	pending := pendingTasks(b)
	total := len(b.Tasks)
	for _, t := range pending {
		if err := runOneTask(ctx, pc, b, t, dev, false, countComplete(b), total, nil); err != nil {
			return err
		}
	}
	return nil
}

// runBatchParallel builds a WorkStealQueue over the batch's pending tasks
// and launches one independent worker per developer via errgroup, so the
// first unrecoverable worker error cancels the rest and is returned.
func runBatchParallel(ctx context.Context, pc *PhaseContext, b *state.Batch, developers []*agent.Session) error {
	pending := pendingTasks(b)
	qTasks := make([]queue.Task, 0, len(pending))
	byID := make(map[string]*state.Task, len(pending))
	for _, t := range pending {
		qTasks = append(qTasks, queue.Task{ID: t.ID, Files: t.TargetFiles})
		byID[t.ID] = t
	}

	if ok, path, a, bb := queue.DisjointFiles(qTasks); !ok {
		pc.emit("development", "batch %s: declared file sets for %q and %q both claim %q; "+
			"proceeding, since file-set separation is a declared contract, not an enforced one", b.BatchID, a, bb, path)
	}

	q := queue.New(qTasks)
	total := len(b.Tasks)

	g, gctx := errgroup.WithContext(ctx)
	for i, dev := range developers {
		workerID := fmt.Sprintf("worker-%d", i+1)
		dev := dev
		g.Go(func() error {
			for {
				qt, ok := q.Next(workerID)
				if !ok {
					return nil
				}
				t := byID[qt.ID]
				err := runOneTask(gctx, pc, b, t, dev, true, countComplete(b), total, func() { q.Requeue(t.ID) })
				if err != nil {
					q.Complete(workerID, qt.ID, false)
					return err
				}
				q.Complete(workerID, qt.ID, t.Status == "complete")
			}
		})
	}
	return g.Wait()
}

func countComplete(b *state.Batch) int {
	n := 0
	for i := range b.Tasks {
		if b.Tasks[i].Status == "complete" {
			n++
		}
	}
	return n
}

// runOneTask runs a task to a terminal status (complete or failed),
// handling the verify/retry/human-queue cycle described by the
// Development phase's worker-iteration contract. requeue is non-nil for
// a parallel batch: a retry-eligible failure hands the task back to the
// shared queue's tail through it instead of looping in place here, so a
// flaky task never monopolizes the worker that drew it while other
// pending tasks in the batch sit idle. A sequential batch has no shared
// queue to starve and passes requeue as nil, keeping its tight retry
// loop.
func runOneTask(ctx context.Context, pc *PhaseContext, b *state.Batch, t *state.Task, dev *agent.Session, parallel bool, doneInBatch, totalInBatch int, requeue func()) error {
	t.Status = "running"
	t.AssignedTo = dev.AgentID
	maxRetries := taskMaxRetries(t, pc)

	for {
		rc := pc.RetryStore.Get(t.ID)
		iter := t.RetryCount + 1
		prompt := BuildTaskPrompt(pc, b, t, rc, iter, maxRetries+1, doneInBatch, totalInBatch, parallel)

		output, err := pc.Runtime.StartAgent(ctx, dev, t.ID, prompt)
		if err != nil {
			t.LastFailureReason = err.Error()
			if !requeueOrFail(pc, t, maxRetries, fmt.Sprintf("agent invocation failed: %v", err)) {
				return nil
			}
			if requeue != nil {
				requeue()
				return nil
			}
			continue
		}

		if _, ok := protocol.FindCompletionMarker(output); !ok {
			pc.emit("development", "task %s: no completion marker found in output", t.ID)
		}

		report := runVerification(ctx, pc, t)
		if report != nil && !report.Passed() {
			reason := summarizeFailures(report)
			t.LastFailureReason = reason
			pc.RetryStore.Record(&retry.Context{
				TaskID:     t.ID,
				Reason:     reason,
				Failing:    toFailingCriteria(report),
				RetryCount: t.RetryCount + 1,
			})
			if !requeueOrFail(pc, t, maxRetries, reason) {
				return nil
			}
			if requeue != nil {
				requeue()
				return nil
			}
			continue
		}

		t.Status = "complete"
		t.LastFailureReason = ""
		pc.RetryStore.Clear(t.ID)
		recordLearnings(pc, t.ID, output)
		return nil
	}
}

func requeueOrFail(pc *PhaseContext, t *state.Task, maxRetries int, reason string) bool {
	if t.RetryCount < maxRetries {
		t.RetryCount++
		t.Status = "pending"
		pc.emit("development", "task %s: attempt %d failed (%s); requeuing", t.ID, t.RetryCount, reason)
		return true
	}
	t.Status = "failed"
	if pc.HumanQueue != nil {
		if err := pc.HumanQueue.Enqueue(pc.SessionID, t.ID, reason); err != nil {
			pc.emit("development", "task %s: failed to enqueue human-queue blocker: %v", t.ID, err)
		}
	}
	pc.emit("development", "task %s: exhausted %d retries (%s); escalated to human queue", t.ID, maxRetries, reason)
	return false
}

func runVerification(ctx context.Context, pc *PhaseContext, t *state.Task) *verify.Report {
	if len(pc.VerifyChecks) == 0 {
		return nil
	}
	v := verify.New(pc.WorkDir, pc.VerifyChecks)
	vctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()
	return v.Run(vctx)
}

func summarizeFailures(r *verify.Report) string {
	var parts []string
	for _, f := range r.Failed() {
		parts = append(parts, string(f.Criterion))
	}
	return "verification failed: " + strings.Join(parts, ", ")
}

func toFailingCriteria(r *verify.Report) []retry.FailingCriterion {
	var out []retry.FailingCriterion
	for _, f := range r.Failed() {
		out = append(out, retry.FailingCriterion{Type: string(f.Criterion), Output: f.Output})
	}
	return out
}

func recordLearnings(pc *PhaseContext, taskID, output string) {
	if pc.Memory == nil {
		return
	}
	signals := memory.ParseSignals(output)
	if len(signals) == 0 {
		return
	}
	entries := make([]memory.Entry, 0, len(signals))
	for _, s := range signals {
		entries = append(entries, memory.Entry{
			Type:      s.Type,
			Content:   s.Content,
			TaskID:    taskID,
			Timestamp: time.Now(),
		})
	}
	if err := pc.Memory.Record(entries); err != nil {
		pc.emit("development", "task %s: failed to record learnings: %v", taskID, err)
	}
}
