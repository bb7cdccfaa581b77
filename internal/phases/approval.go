package phases

import (
	"context"
	"fmt"
	"strings"

	"github.com/kream0/autonoma-sub001/internal/agent"
	"github.com/kream0/autonoma-sub001/internal/protocol"
)

// MaxCEOApprovalAttempts bounds the rewind-and-retry loop a CEO rejection
// drives. Named once here rather than duplicated across the orchestrator
// and this phase.
const MaxCEOApprovalAttempts = 3

// tailChars bounds how much of the last test/QA output is shown to the
// CEO, the same tail-keeping truncation RetryContextStore uses, since a
// failing run's most informative content is usually at the end.
const tailChars = 4000

// CEOApproval reviews the original requirements plus the tails of the
// last test and QA outputs and returns a structured APPROVE/REJECT
// decision. On REJECT within the attempt budget, it rewinds
// {development, testing, review, ceo-approval} and every batch/task to
// pending; on APPROVE, it clears ceoFeedback and reports done.
func CEOApproval(ctx context.Context, pc *PhaseContext) (done bool, err error) {
	sess, serr := ensureSingleton(pc, agent.RoleCEO)
	if serr != nil {
		return false, fmt.Errorf("phases: ceo-approval: %w", serr)
	}

	var sb strings.Builder
	sb.WriteString("## Original Requirements\n\n")
	sb.WriteString(pc.Requirements)
	sb.WriteString("\n\n## Test Output (tail)\n\n")
	sb.WriteString(tail(pc.State.LastTestOutput, tailChars))
	sb.WriteString("\n\n## QA Output (tail)\n\n")
	sb.WriteString(tail(pc.State.LastQaOutput, tailChars))
	sb.WriteString("\n\nReturn a fenced JSON block with keys decision (APPROVE or REJECT), " +
		"confidence, summary, and — on REJECT — a requiredChanges array, each entry carrying " +
		"priority, what, why, where, and how. End with the marker: CEO_DECISION\n")

	output, err := pc.Runtime.StartAgent(ctx, sess, "", sb.String())
	if err != nil {
		return false, fmt.Errorf("phases: ceo-approval: CEO invocation: %w", err)
	}

	decision, ok := protocol.ParseDecision(output)
	if !ok {
		return false, fmt.Errorf("phases: ceo-approval: no structured decision block found")
	}

	pc.State.CompletePhase("ceo-approval")

	if strings.EqualFold(decision.Decision, "APPROVE") {
		pc.State.CEOFeedback = ""
		pc.State.Phase = "complete"
		pc.emit("ceo-approval", "CEO approved (confidence %.2f)", decision.Confidence)
		return true, pc.save()
	}

	pc.State.CEOFeedback = protocol.FormatRejectFeedback(decision.RequiredChanges)
	pc.State.CEOApprovalAttempts++
	pc.emit("ceo-approval", "CEO rejected (attempt %d/%d): %s", pc.State.CEOApprovalAttempts, MaxCEOApprovalAttempts, decision.Summary)

	if pc.State.CEOApprovalAttempts >= MaxCEOApprovalAttempts {
		pc.State.Phase = "failed"
		return true, pc.save()
	}

	pc.State.Rewind()
	pc.State.Phase = "development"
	return false, pc.save()
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "... (earlier output truncated)\n\n" + s[len(s)-n:]
}
