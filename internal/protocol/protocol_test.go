package protocol

import "testing"

func TestExtractJSONBlockFenced(t *testing.T) {
	output := "Some prose.\n```json\n{\"milestones\":[{\"id\":\"m1\",\"title\":\"t\"}]}\n```\nPLAN_COMPLETE"
	obj, ok := ExtractJSONBlock(output)
	if !ok {
		t.Fatalf("expected a block to be found")
	}
	if DetectBlockKind(obj) != BlockPlan {
		t.Errorf("got kind %v, want BlockPlan", DetectBlockKind(obj))
	}
}

func TestExtractJSONBlockRawFallback(t *testing.T) {
	output := `I'm done. {"decision": "APPROVE", "summary": "looks good"}`
	obj, ok := ExtractJSONBlock(output)
	if !ok {
		t.Fatalf("expected raw block to be found")
	}
	if DetectBlockKind(obj) != BlockDecision {
		t.Errorf("got kind %v, want BlockDecision", DetectBlockKind(obj))
	}
}

func TestExtractJSONBlockIgnoresBracesInStrings(t *testing.T) {
	output := `{"overallStatus": "pass", "testsPassed": 12, "summary": "all { good }"}`
	obj, ok := ExtractJSONBlock(output)
	if !ok {
		t.Fatalf("expected block")
	}
	if DetectBlockKind(obj) != BlockTestResult {
		t.Errorf("got kind %v, want BlockTestResult", DetectBlockKind(obj))
	}
}

func TestParseBatchesRoundTrip(t *testing.T) {
	output := "```\n{\"batches\":[{\"batchId\":\"b1\",\"parallel\":false,\"tasks\":[{\"id\":\"1\",\"title\":\"init\",\"files\":[\"package.json\"]}]}]}\n```\nTASKS_READY"
	p, ok := ParseBatches(output)
	if !ok {
		t.Fatalf("expected batches payload")
	}
	if len(p.Batches) != 1 || len(p.Batches[0].Tasks) != 1 || p.Batches[0].Tasks[0].ID != "1" {
		t.Fatalf("got %+v", p)
	}
}

func TestFindCompletionMarker(t *testing.T) {
	if m, ok := FindCompletionMarker("done\nTASK_COMPLETE\n"); !ok || m != TaskComplete {
		t.Errorf("got %v, %v", m, ok)
	}
	if _, ok := FindCompletionMarker("nothing recognized here"); ok {
		t.Errorf("expected no marker found")
	}
}

func TestExtractTags(t *testing.T) {
	output := "[STATUS] working on it\nsome other line\n[BLOCKED] waiting on credentials\n"
	tags := ExtractTags(output)
	if len(tags) != 2 || tags[0].Code != "STATUS" || tags[1].Code != "BLOCKED" {
		t.Fatalf("got %+v", tags)
	}
	if tags[1].Content != "waiting on credentials" {
		t.Errorf("got content %q", tags[1].Content)
	}
}

func TestFormatRejectFeedback(t *testing.T) {
	changes := []RequiredChange{{Priority: "high", What: "X", Where: "src/a.ts:10", How: "do Y"}}
	got := FormatRejectFeedback(changes)
	want := "[HIGH] src/a.ts:10: X — do Y"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
