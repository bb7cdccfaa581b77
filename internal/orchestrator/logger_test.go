package orchestrator

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func TestTagLoggerEmitTagsAndForwards(t *testing.T) {
	var buf bytes.Buffer
	std := log.New(&buf, "", 0)

	var gotTag, gotLine string
	tl := NewTagLogger(std, func(tag, line string) {
		gotTag, gotLine = tag, line
	})

	tl.Emit("development", "task %s started", "t-1")

	if !strings.Contains(buf.String(), "[development] task t-1 started") {
		t.Fatalf("log output = %q, want it to contain the tagged line", buf.String())
	}
	if gotTag != "development" || gotLine != "task t-1 started" {
		t.Fatalf("onEmit got tag=%q line=%q", gotTag, gotLine)
	}
}

func TestTagLoggerSanitizesSecrets(t *testing.T) {
	var buf bytes.Buffer
	std := log.New(&buf, "", 0)
	tl := NewTagLogger(std, nil)

	tl.Emit("runtime", "authenticated with api_key=sk-ant-abcdef1234567890")

	if strings.Contains(buf.String(), "sk-ant-abcdef1234567890") {
		t.Fatalf("log output leaked a secret: %q", buf.String())
	}
}

func TestTagLoggerNilOnEmitDoesNotPanic(t *testing.T) {
	var buf bytes.Buffer
	std := log.New(&buf, "", 0)
	tl := NewTagLogger(std, nil)

	tl.Emit("runtime", "no callback registered")
}
