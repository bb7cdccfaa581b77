package handoff

import (
	"fmt"
	"strings"
)

// maxContextChars bounds the free-form context section of a replay block so
// a verbose predecessor cannot blow the successor's first prompt.
const maxContextChars = 4000

// BuildReplayBlock formats the most recent handoff record for a role into
// the block prefixed to a successor's very first prompt, letting it resume
// the predecessor's task without replaying its history.
func BuildReplayBlock(rec *Record) string {
	if rec == nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Handoff From Predecessor\n\n")
	sb.WriteString(fmt.Sprintf("You are taking over task `%s` from a predecessor agent that reached its "+
		"context limit. Its final report:\n\n", rec.CurrentTaskID))

	if rec.Minimal() {
		sb.WriteString("No structured continuation was recovered from the predecessor's final output. " +
			"Re-inspect the working directory's current state for this task before continuing.\n")
		return sb.String()
	}

	c := rec.Continuation
	if c.CurrentState != "" {
		sb.WriteString("**Current state:**\n")
		sb.WriteString(c.CurrentState)
		sb.WriteString("\n\n")
	}
	if len(c.FilesModified) > 0 {
		sb.WriteString("**Files already modified:**\n")
		for _, f := range c.FilesModified {
			sb.WriteString(fmt.Sprintf("- %s\n", f))
		}
		sb.WriteString("\n")
	}
	if len(c.FilesToTouch) > 0 {
		sb.WriteString("**Files still to touch:**\n")
		for _, f := range c.FilesToTouch {
			sb.WriteString(fmt.Sprintf("- %s\n", f))
		}
		sb.WriteString("\n")
	}
	if len(c.NextSteps) > 0 {
		sb.WriteString("**Next steps:**\n")
		for _, step := range c.NextSteps {
			sb.WriteString(fmt.Sprintf("- %s\n", step))
		}
		sb.WriteString("\n")
	}
	if len(c.Blockers) > 0 {
		sb.WriteString("**Blockers reported by the predecessor:**\n")
		for _, b := range c.Blockers {
			sb.WriteString(fmt.Sprintf("- %s\n", b))
		}
		sb.WriteString("\n")
	}
	if c.Context != "" {
		ctx := c.Context
		if len(ctx) > maxContextChars {
			ctx = ctx[:maxContextChars] + "\n...(truncated)"
		}
		sb.WriteString("**Additional context:**\n")
		sb.WriteString(ctx)
		sb.WriteString("\n")
	}

	return sb.String()
}
