package phases

import (
	"context"
	"fmt"
	"strings"

	"github.com/kream0/autonoma-sub001/internal/agent"
	"github.com/kream0/autonoma-sub001/internal/protocol"
	"github.com/kream0/autonoma-sub001/internal/state"
)

// TaskBreakdown runs the Staff Engineer over the milestone list and
// records the resulting batches. A legacy flat task list (no batches/
// parallelism structure) is always converted into one sequential batch —
// Staff is expected to emit the richer batch format when parallelism is
// wanted; the flat-list path is a compatibility fallback, not a planner.
func TaskBreakdown(ctx context.Context, pc *PhaseContext) error {
	sess, err := ensureSingleton(pc, agent.RoleStaff)
	if err != nil {
		return fmt.Errorf("phases: task-breakdown: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("## Milestones\n\n")
	for _, m := range pc.State.Plan.Milestones {
		sb.WriteString(fmt.Sprintf("- **%s**: %s — %s\n", m.ID, m.Title, m.Description))
	}
	sb.WriteString("\n\nBreak these milestones into batches of developer tasks. Each task needs " +
		"an id, title, description, explicit target files, and a complexity rating. Each batch " +
		"may be marked parallel with an optional maxParallelTasks cap. You may recommend an " +
		"advisory developer count with reasoning; it is observed only, since developers are " +
		"spawned dynamically per batch. Emit a fenced JSON block with a top-level \"batches\" " +
		"array (or, for a trivial case, a flat \"tasks\" array). End with the marker: TASKS_READY\n")

	output, err := pc.Runtime.StartAgent(ctx, sess, "", sb.String())
	if err != nil {
		return fmt.Errorf("phases: task-breakdown: Staff invocation: %w", err)
	}

	batches, err := parseBatchesOrFlatList(output)
	if err != nil {
		return fmt.Errorf("phases: task-breakdown: %w", err)
	}

	pc.State.Batches = batches
	pc.State.CurrentBatchIndex = 0
	pc.emit("task-breakdown", "recorded %d batches", len(batches))

	pc.State.CompletePhase("task-breakdown")
	pc.State.Phase = "development"
	return pc.save()
}

func parseBatchesOrFlatList(output string) ([]state.Batch, error) {
	obj, ok := protocol.ExtractJSONBlock(output)
	if !ok {
		return nil, fmt.Errorf("no structured batches or tasks block found in Staff output")
	}

	if protocol.DetectBlockKind(obj) == protocol.BlockBatches {
		if payload, ok := protocol.ParseBatches(output); ok {
			return toStateBatches(payload), nil
		}
	}

	if rawTasks, ok := obj["tasks"].([]any); ok {
		return []state.Batch{flattenIntoSingleBatch(rawTasks)}, nil
	}

	return nil, fmt.Errorf("structured block present but carries neither batches nor a flat task list")
}

func toStateBatches(p protocol.BatchesPayload) []state.Batch {
	out := make([]state.Batch, 0, len(p.Batches))
	for _, b := range p.Batches {
		sb := state.Batch{
			BatchID:     b.BatchID,
			Parallel:    b.Parallel,
			MaxParallel: b.MaxParallel,
			Description: b.Description,
			Status:      "pending",
		}
		for _, t := range b.Tasks {
			sb.Tasks = append(sb.Tasks, state.Task{
				ID:          t.ID,
				Title:       t.Title,
				Description: t.Description,
				TargetFiles: t.Files,
				Complexity:  t.Complexity,
				Status:      "pending",
			})
		}
		out = append(out, sb)
	}
	return out
}

// flattenIntoSingleBatch converts a legacy flat "tasks" array (each
// element a loosely-typed map) into one sequential batch.
func flattenIntoSingleBatch(rawTasks []any) state.Batch {
	b := state.Batch{BatchID: "batch-1", Parallel: false, Status: "pending"}
	for i, rt := range rawTasks {
		m, ok := rt.(map[string]any)
		if !ok {
			continue
		}
		t := state.Task{Status: "pending"}
		if id, ok := m["id"].(string); ok {
			t.ID = id
		} else {
			t.ID = fmt.Sprintf("task-%d", i+1)
		}
		if title, ok := m["title"].(string); ok {
			t.Title = title
		}
		if desc, ok := m["description"].(string); ok {
			t.Description = desc
		}
		if files, ok := m["files"].([]any); ok {
			for _, f := range files {
				if s, ok := f.(string); ok {
					t.TargetFiles = append(t.TargetFiles, s)
				}
			}
		}
		if complexity, ok := m["complexity"].(string); ok {
			t.Complexity = complexity
		}
		b.Tasks = append(b.Tasks, t)
	}
	return b
}
