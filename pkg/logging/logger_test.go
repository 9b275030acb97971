package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T, level LogLevel) (*Logger, *bytes.Buffer) {
	t.Helper()
	l, err := NewLogger("gateway", level, "")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	buf := &bytes.Buffer{}
	l.output = buf
	return l, buf
}

func TestLoggerWritesStructuredJSON(t *testing.T) {
	l, buf := newTestLogger(t, DEBUG)
	l.Info("node registered", Fields{"mac": "aabbccddeeff"})

	var entry LogEntry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected valid JSON log line: %v", err)
	}
	if entry.Message != "node registered" || entry.Level != "INFO" || entry.Component != "gateway" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Fields["mac"] != "aabbccddeeff" {
		t.Fatalf("expected field to round-trip, got %+v", entry.Fields)
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	l, buf := newTestLogger(t, WARN)
	l.Debug("should not appear")
	l.Info("should not appear either")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below configured level, got %q", buf.String())
	}
	l.Warn("should appear")
	if buf.Len() == 0 {
		t.Fatal("expected output at configured level")
	}
}

func TestWithPeerTagsEntries(t *testing.T) {
	l, buf := newTestLogger(t, DEBUG)
	peerLogger := l.WithPeer("aabbccddeeff")
	peerLogger.Info("handshake complete")

	var entry LogEntry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("expected valid JSON: %v", err)
	}
	if entry.Peer != "aabbccddeeff" {
		t.Fatalf("expected peer tag, got %+v", entry)
	}
}

func TestWithFieldsAccumulates(t *testing.T) {
	l, buf := newTestLogger(t, DEBUG)
	l.WithFields(Fields{"channel": 6}).Info("ready")

	if !strings.Contains(buf.String(), `"channel":6`) {
		t.Fatalf("expected global field in output, got %s", buf.String())
	}
}
