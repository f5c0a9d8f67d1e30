package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"fatal", FatalLevel},
		{"bogus", InfoLevel},
		{"", InfoLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestComponentKeepsOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(&Config{Level: "debug", Output: &buf})

	log.Component("session").Info("Swap loaded", "id", "abc123")

	out := buf.String()
	if !strings.Contains(out, "session") {
		t.Errorf("expected prefix in output, got %q", out)
	}
	if !strings.Contains(out, "abc123") {
		t.Errorf("expected key/value in output, got %q", out)
	}
}

func TestComponentKeepsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&Config{Level: "warn", Output: &buf})

	log.Component("poller").Info("should be filtered")

	if buf.Len() != 0 {
		t.Errorf("expected no output below warn, got %q", buf.String())
	}
}

func TestOpenFile(t *testing.T) {
	w, closeFn, err := OpenFile("")
	if err != nil {
		t.Fatalf("OpenFile(\"\") error = %v", err)
	}
	if w != os.Stderr {
		t.Error("expected stderr for empty path")
	}
	if err := closeFn(); err != nil {
		t.Errorf("close error = %v", err)
	}

	tmpDir, err := os.MkdirTemp("", "emb-logging-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, "logs", "embd.log")
	w, closeFn, err = OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	New(&Config{Output: w}).Info("hello")
	if err := closeFn(); err != nil {
		t.Fatalf("close error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file missing message: %q", data)
	}
}

func TestSetDefaultFeedsComponents(t *testing.T) {
	prev := GetDefault()
	defer SetDefault(prev)

	var buf bytes.Buffer
	SetDefault(New(&Config{Level: "debug", Output: &buf}))

	GetDefault().Component("backend").Debug("Request failed", "op", "summarize")

	out := buf.String()
	if !strings.Contains(out, "backend") || !strings.Contains(out, "summarize") {
		t.Errorf("expected component output on default writer, got %q", out)
	}
}
