package orchestrator

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kream0/autonoma-sub001/internal/security"
)

// TagLogger is the single emission path every significant transition goes
// through (spec's emitOutput hook): a tagged line written to the process
// log and mirrored into a status callback so an external monitor and the
// log files stay in sync, the way the teacher's logInfo/logWarning route
// every message through one place.
type TagLogger struct {
	mu        sync.Mutex
	std       *log.Logger
	sanitizer *security.LogSanitizer
	onEmit    func(tag, line string)
}

// NewTagLogger builds a TagLogger writing to w (the process's own stdout
// log), scrubbing secrets from every line before it is written or handed
// to onEmit. onEmit may be nil.
func NewTagLogger(w *log.Logger, onEmit func(tag, line string)) *TagLogger {
	return &TagLogger{
		std:       w,
		sanitizer: security.NewLogSanitizer(),
		onEmit:    onEmit,
	}
}

// Emit implements phases.Logger.
func (l *TagLogger) Emit(tag, format string, args ...any) {
	line := l.sanitizer.Sanitize(fmt.Sprintf(format, args...))

	l.mu.Lock()
	l.std.Printf("[%s] %s", tag, line)
	cb := l.onEmit
	l.mu.Unlock()

	if cb != nil {
		cb(tag, line)
	}
}

// invocationLogPath names one agent invocation's log file per the
// logs/<agentID>-<UTC-ISO-timestamp>.log convention: agentID already
// carries the role (e.g. "ceo-1", "developer-batch-1-2"), so a second
// role-only segment would be redundant.
func invocationLogPath(workDir, agentID string, at time.Time) string {
	ts := at.UTC().Format("20060102T150405.000Z")
	name := fmt.Sprintf("%s-%s.log", agentID, ts)
	return filepath.Join(workDir, ".autonoma", "logs", name)
}

// writeInvocationLog persists one agent invocation's full output under
// logs/, creating the directory if needed.
func writeInvocationLog(workDir, agentID, content string, at time.Time) error {
	path := invocationLogPath(workDir, agentID, at)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("orchestrator: creating logs directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		return fmt.Errorf("orchestrator: writing invocation log: %w", err)
	}
	return nil
}

// writeObservation spills an oversize invocation output to its own file
// under observations/, addressable independently of the full-run log.
func writeObservation(workDir, agentID, content string, at time.Time) error {
	ts := at.UTC().Format("20060102T150405.000Z")
	path := filepath.Join(workDir, ".autonoma", "observations", fmt.Sprintf("%s-%s.txt", agentID, ts))
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("orchestrator: creating observations directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
		return fmt.Errorf("orchestrator: writing observation: %w", err)
	}
	return nil
}
