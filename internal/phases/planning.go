package phases

import (
	"context"
	"fmt"

	"github.com/kream0/autonoma-sub001/internal/agent"
	"github.com/kream0/autonoma-sub001/internal/protocol"
	"github.com/kream0/autonoma-sub001/internal/state"
)

// Planning runs the CEO over the requirements plus the assembled context
// section and records the resulting milestone list. A missing or
// unparseable plan block is not a phase failure: the phase still
// completes, and downstream (Task-Breakdown) falls back to the
// requirements text verbatim.
func Planning(ctx context.Context, pc *PhaseContext) error {
	sess, err := ensureSingleton(pc, agent.RoleCEO)
	if err != nil {
		return fmt.Errorf("phases: planning: %w", err)
	}

	prompt := BuildContextSection(pc) + "\n## Requirements\n\n" + pc.Requirements +
		"\n\nProduce a milestone list as a fenced JSON block with a top-level \"milestones\" " +
		"array, each entry carrying id, title, and description. End with the marker: PLAN_COMPLETE\n"

	output, err := pc.Runtime.StartAgent(ctx, sess, "", prompt)
	if err != nil {
		return fmt.Errorf("phases: planning: CEO invocation: %w", err)
	}

	if plan, ok := protocol.ParsePlan(output); ok {
		pc.State.Plan = toStatePlan(plan)
		pc.emit("planning", "recorded %d milestones", len(pc.State.Plan.Milestones))
	} else {
		pc.emit("planning", "no structured plan block found; falling back to requirements verbatim")
	}

	if len(pc.State.Plan.Milestones) == 0 {
		pc.State.Plan = state.Plan{Milestones: []state.Milestone{{
			ID:          "milestone-fallback",
			Title:       "Implement requirements",
			Description: pc.Requirements,
		}}}
	}

	pc.State.CompletePhase("planning")
	pc.State.Phase = "task-breakdown"
	return pc.save()
}

func toStatePlan(p protocol.PlanPayload) state.Plan {
	out := state.Plan{Milestones: make([]state.Milestone, 0, len(p.Milestones))}
	for _, m := range p.Milestones {
		out.Milestones = append(out.Milestones, state.Milestone{ID: m.ID, Title: m.Title, Description: m.Description})
	}
	return out
}

// ensureSingleton returns the live session for a singleton role, spawning
// one if none exists yet.
func ensureSingleton(pc *PhaseContext, role agent.Role) (*agent.Session, error) {
	if sess, ok := pc.Runtime.FindAgent(role); ok {
		return sess, nil
	}
	return pc.Runtime.SpawnAgent(role, string(role)+"-1")
}
