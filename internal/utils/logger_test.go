package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerJSONLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("warn", true, &buf)

	logger.Info("dropped")
	logger.Warn("kept", "slot", "outlier_scorer")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Fatalf("info record should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, `"slot":"outlier_scorer"`) {
		t.Fatalf("expected JSON attribute in output, got %s", out)
	}
}

func TestLogWriterRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "selfheal.log")
	w, closer := LogWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: 1})
	defer closer.Close()

	if _, err := w.Write([]byte("hello\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if string(data) != "hello\n" {
		t.Fatalf("unexpected log file contents %q", data)
	}
}

func TestLogWriterStdout(t *testing.T) {
	w, closer := LogWriter("", RotationConfig{})
	if w != os.Stdout {
		t.Fatalf("expected stdout writer")
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
