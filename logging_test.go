package netreactor

import (
	"bytes"
	"errors"
	"testing"
)

func TestWriterLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(LevelWarn, &buf)

	l.Log(LogEntry{Level: LevelInfo, Category: "selector", Message: "should be suppressed"})
	if buf.Len() != 0 {
		t.Fatalf("LevelInfo entry was logged despite LevelWarn threshold: %q", buf.String())
	}

	l.Log(LogEntry{Level: LevelError, Category: "selector", Message: "boom", Err: errors.New("oops")})
	if buf.Len() == 0 {
		t.Fatal("LevelError entry was suppressed")
	}
}

func TestNoOpLoggerDiscardsEverything(t *testing.T) {
	l := NewNoOpLogger()
	if l.IsEnabled(LevelError) {
		t.Fatal("NoOpLogger reports a level enabled")
	}
	l.Log(LogEntry{Level: LevelError, Message: "ignored"})
}

func TestLogHelpersRespectLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(LevelError, &buf)

	LogWritabilityChanged(l, 1, 5, true)
	if buf.Len() != 0 {
		t.Fatal("LogWritabilityChanged (Debug) logged below LevelError threshold")
	}

	LogTaskPanicked(l, 1, "boom")
	if buf.Len() == 0 {
		t.Fatal("LogTaskPanicked did not log at LevelError")
	}
}
