package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestWriterFieldsAndLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").With(String("comp", "test"))

	log.Debug("hidden")
	log.Warn("visible", Int("n", 3), Err(errors.New("boom")), Stack(""))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1: %q", len(lines), buf.String())
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["message"] != "visible" || m["comp"] != "test" || m["n"] != float64(3) {
		t.Fatalf("unexpected event: %v", m)
	}
	if m["err"] != "boom" && m["error"] != "boom" {
		t.Fatalf("error field missing: %v", m)
	}
	if _, ok := m["stack"]; ok {
		t.Fatal("empty stack must be omitted")
	}
	if !strings.HasPrefix(m["caller"].(string), "logging_test.go:") {
		t.Fatalf("caller = %v", m["caller"])
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger must report IsZero")
	}
	l.Info("nothing happens")
	if Nop().IsZero() {
		t.Fatal("Nop is an explicit logger")
	}
}

func TestServiceApplyFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whoten.log")
	svc, log := New(Config{Level: "error", Console: false, File: FileConfig{Enabled: true, Path: path}})
	defer svc.Close()

	log.Info("dropped")
	log.Error("kept")
	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	log.Debug("after apply")
	_ = svc.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := string(b)
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") || !strings.Contains(out, "after apply") {
		t.Fatalf("file contents: %s", out)
	}
	if svc.Config().Level != "debug" {
		t.Fatalf("config level = %q", svc.Config().Level)
	}
}

func TestValidLevel(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"", "info", "WARNING", " debug "} {
		if !ValidLevel(s) {
			t.Fatalf("ValidLevel(%q) = false", s)
		}
	}
	if ValidLevel("verbose") {
		t.Fatal("verbose is not a level")
	}
}

// Not parallel: NewConsole sets zerolog package globals.
func TestNewConsoleLevel(t *testing.T) {
	l := NewConsole("warn")
	if l.IsZero() {
		t.Fatal("console logger is zero")
	}
	if l.Enabled(zerolog.InfoLevel) || !l.Enabled(zerolog.ErrorLevel) {
		t.Fatal("warn console logger must drop info and keep error")
	}
	if !NewConsole("bogus").Enabled(zerolog.InfoLevel) {
		t.Fatal("unknown level falls back to info")
	}
}
