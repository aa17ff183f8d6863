package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"WARN", WarnLevel},
		{"unknown", InfoLevel},
		{"", InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("test", "warn", false, &buf)

	log.Debug("too low")
	log.Info("still too low")
	log.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "too low")
	assert.Contains(t, out, "WARN: shown")
}

func TestLogger_WarnLinesCarryWarnTag(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("test", "info", false, &buf)

	log.Warn("skipping archive", "url", "http://example.com/1.zip")

	line := buf.String()
	assert.Contains(t, line, "WARN:")
	assert.Contains(t, line, "url=http://example.com/1.zip")
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("test", "info", true, &buf)

	log.Info("published", "count", 3, "error", errors.New("boom"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "published", entry["message"])
	assert.Equal(t, float64(3), entry["count"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "test", entry["service"])
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("test", "info", false, &buf)

	scoped := log.WithFields(map[string]interface{}{"component": "fetcher"})
	scoped.Info("downloaded")

	assert.Contains(t, buf.String(), "component=fetcher")

	// The parent logger is unaffected.
	buf.Reset()
	log.Info("plain")
	assert.NotContains(t, buf.String(), "component=")
}

func TestLogger_OddFieldCountIgnoresTrailer(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("test", "info", false, &buf)

	log.Info("msg", "key1", "value1", "dangling")

	lines := strings.TrimSpace(buf.String())
	assert.Contains(t, lines, "key1=value1")
	assert.NotContains(t, lines, "dangling=")
}
