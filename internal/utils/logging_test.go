package utils

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestNewLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{Level: "warn"}, &buf)
	logger.Info("dropped")
	logger.Warn("kept", slog.String("form_id", "F1"))

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("expected a single JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "kept" || rec["form_id"] != "F1" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestNewLoggerToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pollen.log")
	var buf bytes.Buffer
	logger := NewLogger(LoggerConfig{LogToFile: true, Filename: path, MaxSize: 1}, &buf)
	logger.Info("hello")

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !bytes.Contains(b, []byte(`"msg":"hello"`)) || buf.Len() == 0 {
		t.Fatalf("log not written to both targets: file=%q stdout=%q", b, buf.String())
	}
}

func TestLogLevelFromString(t *testing.T) {
	if LogLevelFromString("DEBUG") != slog.LevelDebug || LogLevelFromString("bogus") != slog.LevelInfo {
		t.Fatalf("unexpected level mapping")
	}
}
