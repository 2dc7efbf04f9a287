package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestComponentFollowsInit(t *testing.T) {
	log := Component("collector")

	var buf bytes.Buffer
	InitWithHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	defer Init(slog.LevelInfo, false)

	log.Info("tick done", "metrics", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, buf.String())
	}
	if entry["component"] != "collector" {
		t.Errorf("component = %v, want collector", entry["component"])
	}
	if entry["msg"] != "tick done" {
		t.Errorf("msg = %v", entry["msg"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithHandler(NewHandler(&buf, slog.LevelWarn, false))
	defer Init(slog.LevelInfo, false)

	Component("store").Info("hidden")
	Component("store").Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestWithGroup(t *testing.T) {
	var buf bytes.Buffer
	InitWithHandler(slog.NewJSONHandler(&buf, nil))
	defer Init(slog.LevelInfo, false)

	Component("query").WithGroup("q").Info("run", "metric", "heapUsed")

	if !strings.Contains(buf.String(), `"q":{"metric":"heapUsed"}`) {
		t.Errorf("group not applied: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"loud", slog.LevelInfo, false},
	}

	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
