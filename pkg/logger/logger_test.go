package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func newTestLogger(t *testing.T) (*Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	logg := New(Options{ServiceName: "license-api", Output: buf})
	return logg, buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var entry map[string]any
	if err := json.Unmarshal(lines[len(lines)-1], &entry); err != nil {
		t.Fatalf("parse log line: %v", err)
	}
	return entry
}

func TestInfoIncludesServiceName(t *testing.T) {
	logg, buf := newTestLogger(t)

	logg.Info(context.Background(), "boot")

	entry := lastEntry(t, buf)
	if entry["service"] != "license-api" {
		t.Fatalf("expected service field, got %v", entry["service"])
	}
	if entry["message"] != "boot" {
		t.Fatalf("expected message, got %v", entry["message"])
	}
}

func TestContextFieldsPropagate(t *testing.T) {
	logg, buf := newTestLogger(t)

	ctx := logg.WithRequestID(context.Background(), "req-1")
	ctx = logg.WithLicenseID(ctx, "lic-1")
	ctx = logg.WithDeviceFingerprint(ctx, "fp-1")
	logg.Info(ctx, "validate")

	entry := lastEntry(t, buf)
	if entry["request_id"] != "req-1" {
		t.Fatalf("expected request_id, got %v", entry["request_id"])
	}
	if entry["license_id"] != "lic-1" {
		t.Fatalf("expected license_id, got %v", entry["license_id"])
	}
	if entry["device_fingerprint"] != "fp-1" {
		t.Fatalf("expected device_fingerprint, got %v", entry["device_fingerprint"])
	}
}

func TestErrorIncludesStack(t *testing.T) {
	logg, buf := newTestLogger(t)

	logg.Error(context.Background(), "store down", errors.New("dial tcp: refused"))

	entry := lastEntry(t, buf)
	if entry["error"] != "dial tcp: refused" {
		t.Fatalf("expected error field, got %v", entry["error"])
	}
	if entry["stack"] == nil || entry["stack"] == "" {
		t.Fatal("expected stack trace on error logs")
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != zerolog.DebugLevel {
		t.Fatal("expected debug level")
	}
	if ParseLevel("") != zerolog.InfoLevel {
		t.Fatal("expected info fallback for empty value")
	}
	if ParseLevel("bogus") != zerolog.InfoLevel {
		t.Fatal("expected info fallback for unknown value")
	}
}
