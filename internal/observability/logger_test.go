package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "info", Format: "json", Output: &buf, ServiceName: "pdf-insight"})

	ctx := ContextWithRequestID(context.Background(), "req-1")
	logger.WithContext(ctx).WithSession("s-1").Info().
		Int("pages", 2).
		Int64("bytes", 4096).
		Float64("dpi", 72).
		Msg("Document rasterized")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "pdf-insight", entry["service"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "s-1", entry["session_id"])
	assert.Equal(t, float64(2), entry["pages"])
	assert.Equal(t, float64(4096), entry["bytes"])
	assert.Equal(t, float64(72), entry["dpi"])
	assert.Equal(t, "Document rasterized", entry["message"])
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Level: "warn", Format: "json", Output: &buf})

	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	assert.NotPanics(t, func() {
		logger.WithOperation("test").Error().Str("k", "v").Msg("discarded")
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", parseLevel("debug").String())
	assert.Equal(t, "warn", parseLevel("warning").String())
	assert.Equal(t, "info", parseLevel("bogus").String())
}
