package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input LogLevel
		want  zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{LevelError, zerolog.ErrorLevel},
		{"WARN", zerolog.WarnLevel},
		{"unknown", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSetup_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Config{Level: LevelDebug, Output: &buf})

	logger.Info().Str("cache_id", "abc").Msg("Stored entry")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if line["message"] != "Stored entry" {
		t.Errorf("message = %v", line["message"])
	}
	if line["cache_id"] != "abc" {
		t.Errorf("cache_id = %v", line["cache_id"])
	}
	if _, ok := line["time"]; !ok {
		t.Error("timestamp field missing")
	}
}

func TestSetup_PrettyOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := Setup(Config{Level: LevelDebug, Pretty: true, Output: &buf})

	logger.Info().Msg("Connected to bridge")

	if json.Valid(buf.Bytes()) {
		t.Error("pretty output should not be raw JSON")
	}
	if !strings.Contains(buf.String(), "Connected to bridge") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestNewLogger_ComponentField(t *testing.T) {
	var buf bytes.Buffer
	Setup(Config{Level: LevelDebug, Output: &buf})

	logger := NewLogger("bridge")
	logger.Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if line["component"] != "bridge" {
		t.Errorf("component = %v", line["component"])
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != LevelInfo {
		t.Errorf("Level = %v", cfg.Level)
	}
	if cfg.Pretty {
		t.Error("Pretty defaulted to true")
	}
}
