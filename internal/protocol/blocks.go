// Package protocol extracts structured payloads from agent output: the
// trailing fenced-or-raw JSON block each phase-producing agent ends its
// response with, the completion marker that follows it, and the
// bracketed status-tag lines (heartbeat, status, checkpoint, blocked,
// error) an agent may emit mid-run.
package protocol

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*?\\})\\s*```")

// ExtractJSONBlock finds the last JSON object in output, trying a fenced
// code block first and falling back to a raw brace-matched scan. Agents
// are tolerant writers: some wrap their payload in a fence, some don't,
// and some emit prose both before and after it.
func ExtractJSONBlock(output string) (map[string]any, bool) {
	if m := fencedJSONPattern.FindAllStringSubmatch(output, -1); len(m) > 0 {
		candidate := m[len(m)-1][1]
		var obj map[string]any
		if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
			return obj, true
		}
	}

	if raw, ok := lastBraceMatchedObject(output); ok {
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err == nil {
			return obj, true
		}
	}

	return nil, false
}

// lastBraceMatchedObject scans output for the last top-level {...} span,
// respecting string literals and escapes so braces inside quoted text
// don't unbalance the count.
func lastBraceMatchedObject(output string) (string, bool) {
	var bestStart, bestEnd = -1, -1

	inString := false
	escaped := false
	depth := 0
	start := -1

	for i, r := range output {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					bestStart, bestEnd = start, i+1
				}
			}
		}
	}

	if bestStart < 0 {
		return "", false
	}
	return output[bestStart:bestEnd], true
}

// BlockKind identifies which phase payload a JSON block represents,
// determined from the combination of keys it carries.
type BlockKind string

const (
	BlockPlan       BlockKind = "plan"        // discriminator: milestones
	BlockBatches    BlockKind = "batches"     // discriminator: batches (each with its own nested tasks)
	BlockQAResult   BlockKind = "qa_result"   // discriminator: overallStatus + failedTasks
	BlockTestResult BlockKind = "test_result" // discriminator: overallStatus + testsPassed
	BlockDecision   BlockKind = "decision"    // discriminator: decision
	BlockUnknown    BlockKind = "unknown"
)

// DetectBlockKind classifies a decoded JSON block by which discriminator
// keys it carries, checked in an order specific enough that no block
// matches more than one kind.
func DetectBlockKind(obj map[string]any) BlockKind {
	_, hasMilestones := obj["milestones"]
	_, hasBatches := obj["batches"]
	_, hasOverallStatus := obj["overallStatus"]
	_, hasFailedTasks := obj["failedTasks"]
	_, hasTestsPassed := obj["testsPassed"]
	_, hasDecision := obj["decision"]

	switch {
	case hasMilestones:
		return BlockPlan
	case hasBatches:
		return BlockBatches
	case hasOverallStatus && hasFailedTasks:
		return BlockQAResult
	case hasOverallStatus && hasTestsPassed:
		return BlockTestResult
	case hasDecision:
		return BlockDecision
	default:
		return BlockUnknown
	}
}

// CompletionMarker is one of the recognized end-of-phase tokens an agent
// emits after its JSON block.
type CompletionMarker string

const (
	PlanComplete    CompletionMarker = "PLAN_COMPLETE"
	TasksReady      CompletionMarker = "TASKS_READY"
	TaskComplete    CompletionMarker = "TASK_COMPLETE"
	ReviewComplete  CompletionMarker = "REVIEW_COMPLETE"
	TestingComplete CompletionMarker = "TESTING_COMPLETE"
	CEODecision     CompletionMarker = "CEO_DECISION"
	E2EComplete     CompletionMarker = "E2E_COMPLETE"
)

var allMarkers = []CompletionMarker{
	PlanComplete, TasksReady, TaskComplete, ReviewComplete,
	TestingComplete, CEODecision, E2EComplete,
}

// FindCompletionMarker reports the first recognized completion marker
// present anywhere in output, and whether one was found.
func FindCompletionMarker(output string) (CompletionMarker, bool) {
	for _, m := range allMarkers {
		if strings.Contains(output, string(m)) {
			return m, true
		}
	}
	return "", false
}

// Tag is a bracketed status line, e.g. "[STATUS] rendering dashboard".
type Tag struct {
	Code    string
	Content string
}

var tagLinePattern = regexp.MustCompile(`(?m)^\[(HEARTBEAT|STATUS|CHECKPOINT|COMPLETE|BLOCKED|ERROR)\]\s*(.*)$`)

// ExtractTags returns every bracketed-tag line found in output, in
// appearance order.
func ExtractTags(output string) []Tag {
	matches := tagLinePattern.FindAllStringSubmatch(output, -1)
	tags := make([]Tag, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, Tag{Code: m[1], Content: strings.TrimSpace(m[2])})
	}
	return tags
}
