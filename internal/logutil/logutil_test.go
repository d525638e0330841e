package logutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"testing"
)

func capture(t *testing.T, fn func()) map[string]interface{} {
	t.Helper()
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	fn()

	line := buf.String()
	idx := strings.Index(line, "{")
	if idx < 0 {
		t.Fatalf("log line is not structured: %q", line)
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(line[idx:]), &entry); err != nil {
		t.Fatalf("log line is not valid JSON: %v (%q)", err, line)
	}
	return entry
}

func TestLevels(t *testing.T) {
	entry := capture(t, func() { Info("boot", map[string]interface{}{"port": "8080"}) })
	if entry["level"] != "info" || entry["message"] != "boot" || entry["port"] != "8080" {
		t.Fatalf("unexpected info entry: %+v", entry)
	}

	entry = capture(t, func() { Warn("stream_disabled", nil) })
	if entry["level"] != "warn" || entry["message"] != "stream_disabled" {
		t.Fatalf("unexpected warn entry: %+v", entry)
	}

	entry = capture(t, func() { Error("open_failed", errors.New("no such file"), nil) })
	if entry["level"] != "error" || entry["error"] != "no such file" {
		t.Fatalf("unexpected error entry: %+v", entry)
	}
	if entry["timestamp"] == nil {
		t.Fatalf("missing timestamp: %+v", entry)
	}
}
