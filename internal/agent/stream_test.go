package agent

import (
	"strings"
	"testing"
)

func TestParseStreamAssistantText(t *testing.T) {
	data := strings.Join([]string{
		`{"type":"system","subtype":"init","session_id":"sess-1"}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"working on it"}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"bash","input":{"command":"ls"}}]}}`,
		`{"type":"result","result":{"content":[{"type":"text","text":"done"}],"usage":{"input_tokens":120,"output_tokens":45},"stop_reason":"end_turn"}}`,
	}, "\n")

	result := ParseStream([]byte(data))

	if result.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", result.SessionID)
	}
	if got := result.AssistantText(); got != "working on it" {
		t.Errorf("AssistantText() = %q", got)
	}
	if result.TotalUsage == nil || result.TotalUsage.Total() != 165 {
		t.Fatalf("TotalUsage = %+v, want total 165", result.TotalUsage)
	}
	if result.StopReason != "end_turn" {
		t.Errorf("StopReason = %q", result.StopReason)
	}
}

func TestParseStreamUnknownLineForwarded(t *testing.T) {
	data := "not json at all\n" + `{"type":"assistant","message":{"content":[{"type":"text","text":"hi"}]}}`
	result := ParseStream([]byte(data))

	if !strings.Contains(result.TextContent, "not json at all") {
		t.Errorf("expected unknown line forwarded verbatim, got %q", result.TextContent)
	}
	if !strings.Contains(result.TextContent, "hi") {
		t.Errorf("expected assistant text present, got %q", result.TextContent)
	}
}

func TestParseStreamMalformedMessageSkipped(t *testing.T) {
	data := `{"type":"assistant","message":"not-an-object"}`
	result := ParseStream([]byte(data))
	if len(result.Records) != 0 {
		t.Errorf("expected no records from malformed message, got %d", len(result.Records))
	}
}
