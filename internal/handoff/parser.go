package handoff

import (
	"regexp"
	"strings"
	"time"

	"github.com/kream0/autonoma-sub001/internal/agent"
)

var (
	handoffBlockPattern = regexp.MustCompile(`(?s)<handoff>(.*?)</handoff>`)
	taskIDPattern        = regexp.MustCompile(`(?s)<task_id>(.*?)</task_id>`)
	currentStatePattern  = regexp.MustCompile(`(?s)<current_state>(.*?)</current_state>`)
	contextPattern       = regexp.MustCompile(`(?s)<context>(.*?)</context>`)
	filesModifiedPattern = regexp.MustCompile(`(?s)<files_modified>(.*?)</files_modified>`)
	filesToTouchPattern  = regexp.MustCompile(`(?s)<files_to_touch>(.*?)</files_to_touch>`)
	blockersPattern      = regexp.MustCompile(`(?s)<blockers>(.*?)</blockers>`)
	nextStepsPattern     = regexp.MustCompile(`(?s)<next_steps>(.*?)</next_steps>`)
	listItemPattern      = regexp.MustCompile(`(?s)<(?:file|blocker|step)>(.*?)</(?:file|blocker|step)>`)
)

// ParseContinuation extracts a ContinuationBlock from an agent's terminal
// output. The parser is tolerant: absence of the <handoff> block, or of any
// individual field within it, yields a zero-value ContinuationBlock rather
// than an error — the caller falls back to a minimal handoff.
func ParseContinuation(output string) ContinuationBlock {
	m := handoffBlockPattern.FindStringSubmatch(output)
	if m == nil {
		return ContinuationBlock{}
	}
	body := m[1]

	return ContinuationBlock{
		FilesModified: extractList(body, filesModifiedPattern),
		FilesToTouch:  extractList(body, filesToTouchPattern),
		CurrentState:  extractScalar(body, currentStatePattern),
		Blockers:      extractList(body, blockersPattern),
		NextSteps:     extractList(body, nextStepsPattern),
		Context:       extractScalar(body, contextPattern),
	}
}

// ParseTaskID extracts the task id from a handoff block, if present.
func ParseTaskID(output string) string {
	m := handoffBlockPattern.FindStringSubmatch(output)
	if m == nil {
		return ""
	}
	return extractScalar(m[1], taskIDPattern)
}

func extractScalar(body string, re *regexp.Regexp) string {
	m := re.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func extractList(body string, containerPattern *regexp.Regexp) []string {
	m := containerPattern.FindStringSubmatch(body)
	if m == nil {
		return nil
	}
	items := listItemPattern.FindAllStringSubmatch(m[1], -1)
	if items == nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		v := strings.TrimSpace(item[1])
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// BuildRecord assembles a Record from a predecessor agent's raw output at
// handoff time. When no <handoff> block is present, the record is
// "minimal" — identity and token usage only.
func BuildRecord(predecessorAgentID string, role agent.Role, taskID string, usage agent.TokenUsage, output string) *Record {
	rec := &Record{
		PredecessorAgentID: predecessorAgentID,
		Role:               role,
		CurrentTaskID:      taskID,
		Timestamp:          time.Now().UTC(),
		FinalUsage:         usage,
		Continuation:       ParseContinuation(output),
	}
	return rec
}
