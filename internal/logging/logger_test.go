package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew_Levels(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		logged   []string
		dropped  []string
	}{
		{"trace", zerolog.TraceLevel, []string{"trace message", "debug message", "info message"}, nil},
		{"debug", zerolog.DebugLevel, []string{"debug message", "info message"}, []string{"trace message"}},
		{"info", zerolog.InfoLevel, []string{"info message", "warn message"}, []string{"debug message"}},
		{"WARN", zerolog.WarnLevel, []string{"warn message"}, []string{"info message"}},
		{"error", zerolog.ErrorLevel, []string{"error message"}, []string{"warn message"}},
		{"bogus", zerolog.InfoLevel, []string{"info message"}, []string{"debug message"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(Config{Level: tt.level, Output: &buf})
			assert.Equal(t, tt.expected, logger.GetLevel())

			logger.Trace().Msg("trace message")
			logger.Debug().Msg("debug message")
			logger.Info().Msg("info message")
			logger.Warn().Msg("warn message")
			logger.Error().Msg("error message")

			for _, msg := range tt.logged {
				assert.Contains(t, buf.String(), msg)
			}
			for _, msg := range tt.dropped {
				assert.NotContains(t, buf.String(), msg)
			}
		})
	}
}

func TestNewWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithComponent(Config{Level: "info", Output: &buf}, "orchestrator")
	logger.Info().Msg("child spawned")

	assert.Contains(t, buf.String(), `"component":"orchestrator"`)
	assert.Contains(t, buf.String(), "child spawned")
}

func TestNew_PrettyOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Pretty: true, Output: &buf})
	logger.Info().Msg("pretty message")
	assert.Contains(t, buf.String(), "pretty message")
	assert.NotContains(t, buf.String(), `"message"`)
}

func TestNew_DefaultOutput(t *testing.T) {
	assert.NotPanics(t, func() {
		logger := New(Config{Level: "error"})
		logger.Debug().Msg("discarded")
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Pretty)
	assert.NotNil(t, cfg.Output)
}
