package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", DebugLevel},
		{"DEBUG", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"  info  ", InfoLevel},
		{"bogus", InfoLevel},
		{"", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestInit_WritesToOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, Output: &buf})
	defer Init(Config{Level: InfoLevel})

	Info().Str("key", "value").Msg("hello")

	out := buf.String()
	assert.Contains(t, out, `"key":"value"`)
	assert.Contains(t, out, "hello")
}

func TestInit_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: ErrorLevel, Output: &buf})
	defer Init(Config{Level: InfoLevel})

	Debug().Msg("should not appear")
	Info().Msg("should not appear either")

	assert.Empty(t, buf.String())
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, Output: &buf})
	defer Init(Config{Level: InfoLevel})

	log := Component("manager")
	log.Info().Msg("tagged")

	assert.True(t, strings.Contains(buf.String(), `"component":"manager"`))
}
