package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

// TestParseLevel verifies LOG_LEVEL names map to slog levels.
func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"ERROR": slog.LevelError,
		"warn":  slog.LevelWarn,
		"DEBUG": slog.LevelDebug,
		"TRACE": LevelTrace,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for name, want := range cases {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

// TestNew_JSONComponent verifies JSON output carries the component attribute.
func TestNew_JSONComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(New(&buf, "INFO", "json"), "analyzer")
	logger.Debug("hidden")
	logger.Info("batch done", "batch", "LFP-01")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["component"] != "analyzer" || rec["batch"] != "LFP-01" {
		t.Errorf("unexpected record %v", rec)
	}
}
