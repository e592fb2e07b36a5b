package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.Contains(out, `"service":"predictd"`) {
		t.Fatalf("missing service field: %q", out)
	}
}

func TestNewLogger_Off(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "off", "json")
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	log.Error().Msg("nothing")
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestNewLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "info", "console")
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	log.Info().Msg("hello")
	if strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), "hello") {
		t.Fatalf("expected console output, got %q", buf.String())
	}
}

func TestNewLogger_Rejects(t *testing.T) {
	if _, err := newLogger(&bytes.Buffer{}, "loud", "json"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if _, err := newLogger(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
