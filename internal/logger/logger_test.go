package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bilal/netvelocimeter/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"INFO":    zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestVerbosityLevel(t *testing.T) {
	tests := []struct {
		quiet   bool
		verbose int
		want    string
	}{
		{false, 0, ""},
		{false, 1, "info"},
		{false, 2, "debug"},
		{false, 5, "debug"},
		{true, 2, "error"},
	}
	for _, tt := range tests {
		if got := VerbosityLevel(tt.quiet, tt.verbose); got != tt.want {
			t.Errorf("VerbosityLevel(%v, %d) = %q, want %q", tt.quiet, tt.verbose, got, tt.want)
		}
	}
}

func TestInitJSON(t *testing.T) {
	prevLevel, prevLogger := zerolog.GlobalLevel(), log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(prevLevel)
		log.Logger = prevLogger
	})

	var buf bytes.Buffer
	InitTo(&buf, config.LoggingConfig{Level: "warn", Format: "json"})

	log.Info().Msg("hidden")
	log.Warn().Str("provider", "static").Msg("shown")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not a single json line: %q", buf.String())
	}
	if entry["message"] != "shown" || entry["provider"] != "static" {
		t.Errorf("entry = %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("entry has no timestamp")
	}
}
