package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_AutoFormatIsJSONForNonTerminal(t *testing.T) {
	var buf bytes.Buffer

	logger, flush := New(Options{Output: &buf})
	defer flush()

	logger.Info("hello", slog.String("k", "v"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "hello", rec["msg"])
	assert.Equal(t, "v", rec["k"])
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer

	logger, _ := New(Options{Output: &buf, Format: FormatText})
	logger.Info("hello")

	assert.Contains(t, buf.String(), "msg=hello")
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer

	logger, _ := New(Options{Output: &buf, Level: slog.LevelWarn})
	logger.Info("quiet")
	logger.Warn("loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}

func TestNew_RequestIDFromContext(t *testing.T) {
	var buf bytes.Buffer

	logger, _ := New(Options{Output: &buf, Format: FormatJSON})

	ctx := WithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", RequestID(ctx))

	logger.With(slog.String("component", "test")).InfoContext(ctx, "handled")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "req-123", rec["request_id"])
	assert.Equal(t, "test", rec["component"])
}

func TestRequestID_Missing(t *testing.T) {
	assert.Empty(t, RequestID(context.Background()))
}

func TestMultiHandler_FansOut(t *testing.T) {
	var debugBuf, errBuf bytes.Buffer

	h := newMultiHandler(
		slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewJSONHandler(&errBuf, &slog.HandlerOptions{Level: slog.LevelError}),
	)

	logger := slog.New(h).WithGroup("g").With(slog.Int("n", 1))
	logger.Debug("fine")
	logger.Error("bad")

	assert.Contains(t, debugBuf.String(), "fine")
	assert.Contains(t, debugBuf.String(), "bad")
	assert.NotContains(t, errBuf.String(), "fine")
	assert.Contains(t, errBuf.String(), `"g":{"n":1}`)
	assert.False(t, slog.New(newMultiHandler()).Enabled(context.Background(), slog.LevelError))
}
