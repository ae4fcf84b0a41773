package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewWithWriterTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelDebug})

	logger.Debug("hello", "key", "value")

	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "key=value")
}

func TestNewWithWriterJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{JSON: true})

	logger.Info("structured")

	assert.True(t, strings.HasPrefix(buf.String(), "{"))
	assert.Contains(t, buf.String(), `"msg":"structured"`)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelWarn})

	logger.Info("filtered out")
	assert.Empty(t, buf.String())

	logger.Warn("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNewNopDiscards(t *testing.T) {
	logger := NewNop()
	// Must not panic and must accept any level.
	logger.Debug("nothing")
	logger.Error("nothing")
}
