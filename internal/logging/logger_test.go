package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swap-ledger/internal/config"
)

func TestNew_FileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "server.log")

	logger, closeFn, err := New("server", config.LogConfig{Level: "debug", Format: "json", Output: "file", FilePath: path})
	require.NoError(t, err)

	logger.Debug("swap recorded", "swap_id", "s1")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &line))
	assert.Equal(t, "server", line["service"])
	assert.Equal(t, "swap recorded", line["msg"])
	assert.Equal(t, "s1", line["swap_id"])
}

func TestNew_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revalue.log")

	logger, closeFn, err := New("revalue", config.LogConfig{Level: "warn", Output: "file", FilePath: path})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "msg=shown")
}

func TestNew_Invalid(t *testing.T) {
	tests := []config.LogConfig{
		{Level: "loud"},
		{Format: "xml"},
		{Output: "syslog"},
	}
	for _, cfg := range tests {
		_, _, err := New("server", cfg)
		assert.Error(t, err, "config %+v", cfg)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for raw, want := range tests {
		got, err := parseLevel(raw)
		require.NoError(t, err)
		assert.Equal(t, want, got, "level %q", raw)
	}
}

func TestRequestHandler_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(slog.New(requestHandler{slog.NewJSONHandler(&buf, nil)}), "api")

	ctx := WithRequestID(context.Background(), "req-42")
	logger.InfoContext(ctx, "group created", "group", "g1")
	logger.Info("no request")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))

	assert.Equal(t, "req-42", first[KeyRequestID])
	assert.Equal(t, "api", first[KeyComponent])
	assert.NotContains(t, second, KeyRequestID)
	assert.Equal(t, "api", second[KeyComponent])
}

func TestRequestID(t *testing.T) {
	_, ok := RequestID(context.Background())
	assert.False(t, ok)

	_, ok = RequestID(WithRequestID(context.Background(), ""))
	assert.False(t, ok)

	id, ok := RequestID(WithRequestID(context.Background(), "abc"))
	assert.True(t, ok)
	assert.Equal(t, "abc", id)
}

func TestUTCTime(t *testing.T) {
	local := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("UTC+3", 3*3600))

	a := utcTime(nil, slog.Time(slog.TimeKey, local))
	assert.Equal(t, time.UTC, a.Value.Time().Location())
	assert.True(t, local.Equal(a.Value.Time()))

	nested := utcTime([]string{"swap"}, slog.Time(slog.TimeKey, local))
	assert.Equal(t, local.Location(), nested.Value.Time().Location())
}
