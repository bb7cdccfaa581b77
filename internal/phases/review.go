package phases

import (
	"context"
	"fmt"
	"strings"

	"github.com/kream0/autonoma-sub001/internal/agent"
	"github.com/kream0/autonoma-sub001/internal/protocol"
)

// Review runs QA back over completed tasks plus a typecheck, for up to
// ReviewMaxRounds rounds. Unstructured output is treated as pass;
// a structured FAIL with a failing task list drives a selective retry
// through runRetryTasks, with the QA reason as each retried task's
// failure reason. The loop exits on a QA pass, when no further retries
// are possible, or when the round cap is hit.
func Review(ctx context.Context, pc *PhaseContext) error {
	sess, err := ensureSingleton(pc, agent.RoleQA)
	if err != nil {
		return fmt.Errorf("phases: review: %w", err)
	}

	for round := 1; round <= ReviewMaxRounds; round++ {
		prompt := fmt.Sprintf("Review round %d/%d. Re-read the completed tasks in the working "+
			"directory and run a type-check. If everything is correct, report pass. Otherwise "+
			"emit a fenced JSON block with overallStatus=\"FAIL\" and a failedTasks array of task "+
			"ids. End with the marker: REVIEW_COMPLETE\n", round, ReviewMaxRounds)

		output, err := pc.Runtime.StartAgent(ctx, sess, "", prompt)
		if err != nil {
			return fmt.Errorf("phases: review: QA invocation: %w", err)
		}
		pc.State.LastQaOutput = output

		result, ok := protocol.ParseQAResult(output)
		if !ok {
			pc.emit("review", "round %d: unstructured or unparseable output, treating as pass", round)
			break
		}
		if strings.EqualFold(result.OverallStatus, "pass") || strings.EqualFold(result.OverallStatus, "passed") {
			pc.emit("review", "round %d: QA passed", round)
			break
		}

		if len(result.FailedTasks) == 0 {
			pc.emit("review", "round %d: QA reported failure with no failing tasks named; treating as pass", round)
			break
		}

		retried, err := runRetryTasks(ctx, pc, result.FailedTasks, result.Summary)
		if err != nil {
			return fmt.Errorf("phases: review: retrying failed tasks: %w", err)
		}
		if !retried {
			pc.emit("review", "round %d: no further retries possible among failing tasks; stopping", round)
			break
		}
	}

	pc.State.CompletePhase("review")
	pc.State.Phase = "ceo-approval"
	return pc.save()
}

// runRetryTasks requeues every named task whose retryCount is still
// within budget and re-runs it immediately on a dedicated retry
// developer; a task that has already exhausted its retries is marked
// failed and escalated to the human queue instead. It reports whether
// any task was actually retried.
func runRetryTasks(ctx context.Context, pc *PhaseContext, taskIDs []string, reason string) (bool, error) {
	var anyRetried bool
	var dev *agent.Session

	for _, taskID := range taskIDs {
		t, b := findTask(pc.State, taskID)
		if t == nil {
			pc.emit("review", "retry requested for unknown task %q; skipping", taskID)
			continue
		}

		maxRetries := taskMaxRetries(t, pc)
		if t.RetryCount >= maxRetries {
			t.Status = "failed"
			if pc.HumanQueue != nil {
				if err := pc.HumanQueue.Enqueue(pc.SessionID, t.ID, reason); err != nil {
					pc.emit("review", "task %s: failed to enqueue human-queue blocker: %v", t.ID, err)
				}
			}
			continue
		}

		if dev == nil {
			var err error
			dev, err = pc.Runtime.SpawnAgent(agent.RoleDeveloper, "developer-review-retry")
			if err != nil {
				return anyRetried, err
			}
			defer pc.Runtime.CleanupDevelopers([]*agent.Session{dev})
		}

		t.LastFailureReason = reason
		t.Status = "pending"
		anyRetried = true
		if err := runOneTask(ctx, pc, b, t, dev, false, countComplete(b), len(b.Tasks)); err != nil {
			return anyRetried, err
		}
	}

	return anyRetried, nil
}
