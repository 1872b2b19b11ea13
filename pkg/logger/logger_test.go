package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

// ===== Construction =====

func TestNewFallsBackToInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(LoggingConfig{Level: "not-a-level", Format: "text"})
	log.SetOutput(&buf)

	log.Debug("hidden")
	log.Info("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug output should be suppressed at info level, got %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("info output missing, got %q", out)
	}
}

func TestNewJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	log := New(LoggingConfig{Level: "info", Format: "json"})
	log.SetOutput(&buf)

	log.WithField("team_id", "TEAMA").Info("resolved")

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if record["team_id"] != "TEAMA" {
		t.Errorf("expected team_id field, got %v", record)
	}
	if record["msg"] != "resolved" {
		t.Errorf("expected msg field, got %v", record)
	}
}

// ===== Component tagging =====

func TestNamedAttachesComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(LoggingConfig{Level: "info", Format: "json"})
	log.SetOutput(&buf)

	log.Named("teammap").Info("ready")

	var record map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["component"] != "teammap" {
		t.Errorf("expected component=teammap, got %v", record["component"])
	}
}

func TestNewDefaultUsable(t *testing.T) {
	log := NewDefault("test")
	if log == nil {
		t.Fatal("NewDefault returned nil")
	}
	var buf bytes.Buffer
	log.SetOutput(&buf)
	log.Infof("count=%d", 3)
	if !strings.Contains(buf.String(), "count=3") {
		t.Errorf("printf-style output missing, got %q", buf.String())
	}
}
