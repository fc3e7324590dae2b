package config

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{AppEnv: "production", LogFormat: "json"}, &buf)
	logger.Info("order created")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "order created" || entry["env"] != "production" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if _, ok := entry["source"]; ok {
		t.Fatalf("production logs should omit source")
	}
}

func TestNewLoggerDefaultsToText(t *testing.T) {
	var buf bytes.Buffer
	newLogger(Config{AppEnv: "development", LogFormat: "text"}, &buf).Info("hello")

	if !strings.Contains(buf.String(), "msg=hello") || !strings.Contains(buf.String(), "env=development") {
		t.Fatalf("unexpected text log %q", buf.String())
	}
}
