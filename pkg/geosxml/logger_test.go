package geosxml

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger(t *testing.T) {
	emit := func(l *Logger) {
		l.Debug("debug message")
		l.Info("info message")
		l.Warn("warn message")
		l.Error("error message")
	}

	tests := []struct {
		name           string
		level          LogLevel
		expectedOutput []string
		notExpected    []string
	}{
		{
			name:           "debug level shows all messages",
			level:          LogDebug,
			expectedOutput: []string{"DEBUG", "debug message", "INFO", "WARN", "ERROR", "error message"},
		},
		{
			name:           "info level hides debug messages",
			level:          LogInfo,
			expectedOutput: []string{"INFO", "info message", "WARN", "ERROR"},
			notExpected:    []string{"DEBUG", "debug message"},
		},
		{
			name:           "error level shows only errors",
			level:          LogError,
			expectedOutput: []string{"ERROR", "error message"},
			notExpected:    []string{"info message", "warn message"},
		},
		{
			name:        "off hides everything",
			level:       LogOff,
			notExpected: []string{"message"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			emit(NewLogger(&buf, tt.level))

			output := buf.String()
			for _, want := range tt.expectedOutput {
				assert.Contains(t, output, want)
			}
			for _, unwanted := range tt.notExpected {
				assert.NotContains(t, output, unwanted)
			}
		})
	}
}

func TestLoggerSetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LogError)
	assert.False(t, logger.IsDebugMode())

	logger.SetLevel(LogDebug)
	assert.True(t, logger.IsDebugMode())
	logger.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestLoggerFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	logger.WithFields(Fields{"file": "deck.xml", "depth": 2}).Info("Including %s", "mesh.xml")
	logger.DebugExpression("1 + 1", 2.0)

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "Including mesh.xml", entries[0].Message)
		fields := entries[0].ContextMap()
		assert.Equal(t, "deck.xml", fields["file"])
		assert.EqualValues(t, 2, fields["depth"])

		assert.Equal(t, "Expression evaluated", entries[1].Message)
		assert.Equal(t, "1 + 1", entries[1].ContextMap()["expression"])
	}
}

func TestGlobalLogger(t *testing.T) {
	original := GetLogger()
	defer SetLogger(original)

	var buf bytes.Buffer
	SetLogger(NewLogger(&buf, LogInfo))
	Info("global %d", 1)
	WithField("k", "v").Warn("with field")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "global 1")
	assert.Contains(t, lines[1], `"k": "v"`)
}
