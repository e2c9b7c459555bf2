package pkg

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogs sends the default logger to a buffer for the rest of the test
func captureLogs(t *testing.T, level LogLevel) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLogLevel(level)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLogLevel(LogLevelWarn)
	})
	return &buf
}

func TestNonTerminalOutputIsJSON(t *testing.T) {
	buf := captureLogs(t, LogLevelInfo)

	WithFields(log.Fields{
		"device": "0000:01:00.0",
		"vendor": "15b3",
	}).Info("device skipped")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "device skipped", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "0000:01:00.0", entry["device"])
	assert.Equal(t, "15b3", entry["vendor"])
}

func TestLevelFiltering(t *testing.T) {
	buf := captureLogs(t, LogLevelWarn)

	Debug("hidden debug")
	Info("hidden info")
	Warn("visible warning")
	Error("visible error %d", 42)

	output := buf.String()
	assert.NotContains(t, output, "hidden debug")
	assert.NotContains(t, output, "hidden info")
	assert.Contains(t, output, "visible warning")
	assert.Contains(t, output, "visible error 42")
}

func TestSetLogLevelFromString(t *testing.T) {
	defer SetLogLevel(LogLevelWarn)

	require.NoError(t, SetLogLevelFromString("debug"))
	assert.True(t, IsDebugEnabled())

	require.NoError(t, SetLogLevelFromString("WARNING"))
	assert.False(t, IsDebugEnabled())

	assert.Error(t, SetLogLevelFromString("verbose"))
	assert.False(t, IsDebugEnabled(), "an invalid level leaves the current one")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
		wantErr  bool
	}{
		{"debug", LogLevelDebug, false},
		{"info", LogLevelInfo, false},
		{" warn ", LogLevelWarn, false},
		{"error", LogLevelError, false},
		{"", LogLevelWarn, true},
		{"trace", LogLevelWarn, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLogLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestErrorLogging(t *testing.T) {
	buf := captureLogs(t, LogLevelWarn)

	WithError(errors.New("config space unreadable")).Error("Operation failed")

	assert.True(t, strings.Contains(buf.String(), "config space unreadable"))
}

func TestSetFormatterOverrides(t *testing.T) {
	buf := captureLogs(t, LogLevelInfo)
	SetFormatter(&log.TextFormatter{DisableTimestamp: true, DisableColors: true})

	WithField("device", "test-device").Info("Device found")

	assert.Contains(t, buf.String(), "device=test-device")
	assert.Contains(t, buf.String(), `msg="Device found"`)
}
