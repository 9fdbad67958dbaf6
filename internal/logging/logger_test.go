package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestDefaultLoggerIsSilent(t *testing.T) {
	if Logger() == nil {
		t.Fatal("Logger() returned nil")
	}
	// A nop handler should report disabled for every level.
	if Logger().Handler().Enabled(context.Background(), slog.LevelError) {
		t.Fatal("default logger should be disabled for all levels")
	}
}

func TestSetLoggerAndRestore(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))
	SetLogger(l)
	defer SetLogger(nil)

	Logger().Info("hello")
	if buf.Len() == 0 {
		t.Fatal("expected log output after SetLogger")
	}

	SetLogger(nil)
	if Logger().Handler().Enabled(context.Background(), slog.LevelError) {
		t.Fatal("SetLogger(nil) should restore the silent logger")
	}
}
