package phases

import (
	"fmt"
	"strings"

	"github.com/kream0/autonoma-sub001/internal/retry"
	"github.com/kream0/autonoma-sub001/internal/state"
	"github.com/kream0/autonoma-sub001/internal/template"
)

// taskInstructionVariants rotates the worker's closing instruction across
// retries so a requeued task's prompt doesn't read identically to its
// previous failed attempt, which in practice nudges a model away from
// repeating the same unsuccessful approach verbatim.
var taskInstructionVariants = []string{
	"Implement exactly this task, within the files it names, and nothing else.",
	"Focus narrowly on this task. Touch only the listed files.",
	"Complete this task precisely as scoped. Do not expand beyond the listed files.",
}

func instructionForIteration(iter int) string {
	return taskInstructionVariants[(iter-1)%len(taskInstructionVariants)]
}

// BuildContextSection assembles the static context section prefixed to
// Planning's prompt: project guidelines, enumerated project docs (for an
// adopt run), and memory hits for "architecture" and "decisions".
func BuildContextSection(pc *PhaseContext) string {
	var sb strings.Builder
	sb.WriteString("## Context\n\n")

	if pc.HasProjectDocs && pc.ProjectDocsText != "" {
		sb.WriteString("### Existing Project Docs\n\n")
		sb.WriteString(pc.ProjectDocsText)
		sb.WriteString("\n\n")
	}

	if pc.Memory != nil {
		for _, tag := range []string{"architecture", "decisions"} {
			hits, err := pc.Memory.Query(tag, 10)
			if err != nil || len(hits) == 0 {
				continue
			}
			sb.WriteString(fmt.Sprintf("### Memory: %s\n\n", tag))
			for _, h := range hits {
				sb.WriteString("- " + h.Content + "\n")
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// buildRetrySection renders a task's prior-attempt failure context, or
// the empty string if none is recorded.
func buildRetrySection(rc *retry.Context) string {
	if rc == nil {
		return ""
	}
	return rc.Section()
}

// buildMemoryHints surfaces learnings tagged with the task id from a
// previous failed attempt on the same task.
func buildMemoryHints(pc *PhaseContext, taskID string) string {
	if pc.Memory == nil {
		return ""
	}
	hits, err := pc.Memory.Query(taskID, 5)
	if err != nil || len(hits) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## Prior Learnings\n\n")
	for _, h := range hits {
		sb.WriteString("- " + h.Content + "\n")
	}
	return sb.String()
}

// taskVariables builds the {{task_id}}/{{batch_id}} substitution map a
// Staff Engineer's task or batch description may reference when one task's
// instructions point at another (e.g. "reuse the client built in {{task_id}}
// of the prior batch").
func taskVariables(b *state.Batch, t *state.Task) map[string]string {
	return map[string]string{"task_id": t.ID, "batch_id": b.BatchID}
}

// buildTaskXML renders a task's identity and scope as an XML-like block,
// matching the handoff protocol's tag-based vocabulary rather than JSON,
// since this is addressed to the worker, not parsed back out of it.
// {{task_id}}/{{batch_id}} placeholders in the description are resolved
// against this task's own identity before rendering.
func buildTaskXML(b *state.Batch, t *state.Task) string {
	description := template.RenderPrompt(t.Description, taskVariables(b, t))

	var sb strings.Builder
	sb.WriteString("<task>\n")
	sb.WriteString(fmt.Sprintf("  <id>%s</id>\n", t.ID))
	sb.WriteString(fmt.Sprintf("  <title>%s</title>\n", t.Title))
	sb.WriteString(fmt.Sprintf("  <description>%s</description>\n", description))
	for _, f := range t.TargetFiles {
		sb.WriteString(fmt.Sprintf("  <file>%s</file>\n", f))
	}
	sb.WriteString("</task>\n")
	return sb.String()
}

// BuildTaskPrompt assembles one development-worker prompt: static context
// section, optional retry section, optional memory hints, the task XML,
// an execution-mode note, a varied closing instruction, and a recitation
// block at the very end restating the task, progress, and the exact
// completion marker to emit.
func BuildTaskPrompt(pc *PhaseContext, b *state.Batch, t *state.Task, rc *retry.Context, iter, maxIter, doneInBatch, totalInBatch int, parallel bool) string {
	var sb strings.Builder

	if ctxSection := BuildContextSection(pc); ctxSection != "" {
		sb.WriteString(ctxSection)
	}

	if retrySection := buildRetrySection(rc); retrySection != "" {
		sb.WriteString(retrySection)
		sb.WriteString("\n")
	}

	if hints := buildMemoryHints(pc, t.ID); hints != "" {
		sb.WriteString(hints)
		sb.WriteString("\n")
	}

	sb.WriteString(buildTaskXML(b, t))
	sb.WriteString("\n")

	mode := "sequential"
	if parallel {
		mode = "parallel"
	}
	sb.WriteString(fmt.Sprintf("## Execution Mode\n\nThis task runs in a %s batch (%s). "+
		"Other tasks in this batch may be touching different files concurrently; stay within "+
		"your declared file set.\n\n", mode, b.BatchID))

	sb.WriteString(instructionForIteration(iter))
	sb.WriteString("\n\n")

	sb.WriteString("## Recitation\n\n")
	sb.WriteString(fmt.Sprintf("Task: `%s` — %s\n", t.ID, t.Title))
	sb.WriteString(fmt.Sprintf("Description: %s\n", t.Description))
	sb.WriteString(fmt.Sprintf("Files: %s\n", strings.Join(t.TargetFiles, ", ")))
	sb.WriteString(fmt.Sprintf("Progress: %d/%d tasks complete in this batch\n", doneInBatch, totalInBatch))
	sb.WriteString(fmt.Sprintf("Iteration: %d/%d\n", iter, maxIter))
	sb.WriteString("When finished, end your output with a fenced JSON block describing what changed, " +
		"followed on its own line by the exact marker: TASK_COMPLETE\n")

	return sb.String()
}
