package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerWithServiceStampsServiceField(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithService("ncbot")
	l.SetOutput(&buf)
	l.WithField("k", "v").Info("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if line["service"] != "ncbot" {
		t.Fatalf("expected service field, got %v", line["service"])
	}
	if line["k"] != "v" {
		t.Fatalf("expected k field, got %v", line["k"])
	}
}

func TestNewDiscardLogger(t *testing.T) {
	l := NewDiscardLogger()
	l.Info("dropped")
	if l.GetLevel() != DebugLevel {
		t.Fatalf("expected debug level")
	}
}
