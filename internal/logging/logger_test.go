package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Yupick/mc-simple/internal/config"
)

func TestInitAndCloseLogger(t *testing.T) {
	root := t.TempDir()
	logPath := filepath.Join(root, "app.log")

	_, err := Init(config.LoggingConfig{
		Level:      "info",
		Format:     "json",
		File:       logPath,
		MaxSize:    10,
		MaxBackups: 1,
		MaxAge:     1,
	})
	if err != nil {
		t.Fatalf("failed to init logger: %v", err)
	}

	L().Info("test_log")
	if err := Close(); err != nil {
		t.Fatalf("failed to close logger: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "test_log") {
		t.Errorf("expected log file to contain the record, got %q", data)
	}
}

func TestSlogWriterExtractsComponent(t *testing.T) {
	var buf bytes.Buffer
	w := slogWriter{logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	if _, err := w.Write([]byte("[Supervisor] Server started (pid 42)\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
	}
	if record["component"] != "Supervisor" || record["msg"] != "Server started (pid 42)" {
		t.Errorf("unexpected record %v", record)
	}
}

func TestSplitComponent(t *testing.T) {
	tests := []struct {
		in, component, rest string
	}{
		{"[RCON] connected", "RCON", "connected"},
		{"no tag here", "", "no tag here"},
		{"[] empty", "", "[] empty"},
		{"[unterminated", "", "[unterminated"},
	}
	for _, tt := range tests {
		component, rest := splitComponent(tt.in)
		if component != tt.component || rest != tt.rest {
			t.Errorf("splitComponent(%q) = %q, %q", tt.in, component, rest)
		}
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("DEBUG") != slog.LevelDebug || parseLevel("warning") != slog.LevelWarn || parseLevel("bogus") != slog.LevelInfo {
		t.Error("unexpected level mapping")
	}
}
