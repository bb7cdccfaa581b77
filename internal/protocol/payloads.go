package protocol

import (
	"encoding/json"
	"strings"
)

// Milestone is one entry of a CEO-produced plan.
type Milestone struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// PlanPayload is the decoded Planning-phase JSON block.
type PlanPayload struct {
	Milestones []Milestone `json:"milestones"`
}

// TaskPayload is one developer task as emitted in a Staff-produced batch.
type TaskPayload struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Files       []string `json:"files,omitempty"`
	Complexity  string   `json:"complexity,omitempty"`
}

// BatchPayload is one batch of developer tasks as emitted in a
// Task-Breakdown-phase JSON block.
type BatchPayload struct {
	BatchID         string        `json:"batchId"`
	Parallel        bool          `json:"parallel"`
	MaxParallel     int           `json:"maxParallelTasks,omitempty"`
	Description     string        `json:"description,omitempty"`
	Tasks           []TaskPayload `json:"tasks"`
}

// BatchesPayload is the decoded Task-Breakdown-phase JSON block.
type BatchesPayload struct {
	Batches []BatchPayload `json:"batches"`
}

// QAResultPayload is the decoded Review-phase JSON block.
type QAResultPayload struct {
	OverallStatus string   `json:"overallStatus"`
	FailedTasks   []string `json:"failedTasks"`
	Summary       string   `json:"summary,omitempty"`
}

// TestResultPayload is the decoded Testing-phase JSON block.
type TestResultPayload struct {
	OverallStatus string   `json:"overallStatus"`
	TestsPassed   int      `json:"testsPassed"`
	TestsFailed   int      `json:"testsFailed,omitempty"`
	Failures      []string `json:"failures,omitempty"`
	Summary       string   `json:"summary,omitempty"`
}

// RequiredChange is one item of a CEO REJECT decision's change list.
type RequiredChange struct {
	Priority string `json:"priority"`
	What     string `json:"what"`
	Why      string `json:"why"`
	Where    string `json:"where"`
	How      string `json:"how"`
}

// DecisionPayload is the decoded CEO-Approval-phase JSON block.
type DecisionPayload struct {
	Decision        string           `json:"decision"`
	Confidence      float64          `json:"confidence,omitempty"`
	Summary         string           `json:"summary,omitempty"`
	RequiredChanges []RequiredChange `json:"requiredChanges,omitempty"`
}

func decode[T any](obj map[string]any) (T, error) {
	var out T
	raw, err := json.Marshal(obj)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}

// ParsePlan extracts and decodes a Planning-phase block from output.
func ParsePlan(output string) (PlanPayload, bool) {
	obj, ok := ExtractJSONBlock(output)
	if !ok || DetectBlockKind(obj) != BlockPlan {
		return PlanPayload{}, false
	}
	p, err := decode[PlanPayload](obj)
	return p, err == nil
}

// ParseBatches extracts and decodes a Task-Breakdown-phase block from
// output.
func ParseBatches(output string) (BatchesPayload, bool) {
	obj, ok := ExtractJSONBlock(output)
	if !ok || DetectBlockKind(obj) != BlockBatches {
		return BatchesPayload{}, false
	}
	b, err := decode[BatchesPayload](obj)
	return b, err == nil
}

// ParseQAResult extracts and decodes a Review-phase block from output.
func ParseQAResult(output string) (QAResultPayload, bool) {
	obj, ok := ExtractJSONBlock(output)
	if !ok || DetectBlockKind(obj) != BlockQAResult {
		return QAResultPayload{}, false
	}
	r, err := decode[QAResultPayload](obj)
	return r, err == nil
}

// ParseTestResult extracts and decodes a Testing-phase block from output.
// Unparseable output defaults to pass: callers that get ok=false should
// treat the phase as passed with a note rather than failing the
// orchestration outright.
func ParseTestResult(output string) (TestResultPayload, bool) {
	obj, ok := ExtractJSONBlock(output)
	if !ok || DetectBlockKind(obj) != BlockTestResult {
		return TestResultPayload{}, false
	}
	r, err := decode[TestResultPayload](obj)
	return r, err == nil
}

// ParseDecision extracts and decodes a CEO-Approval-phase block from
// output.
func ParseDecision(output string) (DecisionPayload, bool) {
	obj, ok := ExtractJSONBlock(output)
	if !ok || DetectBlockKind(obj) != BlockDecision {
		return DecisionPayload{}, false
	}
	d, err := decode[DecisionPayload](obj)
	return d, err == nil
}

// FormatRejectFeedback renders a REJECT decision's required changes as the
// newline-joined "[PRIORITY] file: what — how" form stored on
// PersistedState as ceoFeedback.
func FormatRejectFeedback(changes []RequiredChange) string {
	lines := make([]string, 0, len(changes))
	for _, c := range changes {
		lines = append(lines, "["+strings.ToUpper(c.Priority)+"] "+c.Where+": "+c.What+" — "+c.How)
	}
	return strings.Join(lines, "\n")
}
