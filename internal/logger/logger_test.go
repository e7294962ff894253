package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer for testing.
// Returns the buffer and a cleanup function to restore original output.
func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false
	mu.Unlock()

	reconfigure()

	cleanup := func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		reconfigure()
	}

	return buf, cleanup
}

func TestLevelFiltering(t *testing.T) {
	t.Run("debug level shows all messages", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("DEBUG")
		defer SetLevel("INFO")

		Debug("debug message")
		Info("info message")
		Warn("warn message")
		Error("error message")

		out := buf.String()
		assert.Contains(t, out, "debug message")
		assert.Contains(t, out, "info message")
		assert.Contains(t, out, "warn message")
		assert.Contains(t, out, "error message")
	})

	t.Run("warn level suppresses debug and info", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("WARN")
		defer SetLevel("INFO")

		Debug("debug message")
		Info("info message")
		Warn("warn message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.NotContains(t, out, "info message")
		assert.Contains(t, out, "warn message")
	})

	t.Run("invalid level is ignored", func(t *testing.T) {
		SetLevel("INFO")
		SetLevel("VERBOSE")
		assert.Equal(t, Level(currentLevel.Load()), LevelInfo)
	})
}

func TestStructuredFields(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	Info("tenant transition", KeyTenant, "demo-1700000000", KeyFromState, "active", KeyToState, "paused")

	out := buf.String()
	assert.Contains(t, out, "tenant=demo-1700000000")
	assert.Contains(t, out, "from_state=active")
	assert.Contains(t, out, "to_state=paused")
}

func TestJSONFormat(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetFormat("json")
	defer SetFormat("text")

	Info("checkpoint saved", KeyTenant, "demo-1", KeyObjectKey, "checkpoints/demo-1/x.json")

	var entry map[string]any
	line := strings.TrimSpace(buf.String())
	require.NoError(t, json.Unmarshal([]byte(line), &entry))

	assert.Equal(t, "checkpoint saved", entry["msg"])
	assert.Equal(t, "demo-1", entry["tenant"])
	assert.Equal(t, "checkpoints/demo-1/x.json", entry["object_key"])
}

func TestContextFields(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	lc := NewLogContext("demo-1", "pause")
	ctx := WithContext(context.Background(), lc)

	InfoCtx(ctx, "flush acknowledged")

	out := buf.String()
	assert.Contains(t, out, "tenant=demo-1")
	assert.Contains(t, out, "op=pause")
}

func TestContextRoundTrip(t *testing.T) {
	lc := NewLogContext("demo-2", "archive").WithTrace("trace-1", "span-1")
	ctx := WithContext(context.Background(), lc)

	got := FromContext(ctx)
	require.NotNil(t, got)
	assert.Equal(t, "demo-2", got.TenantID)
	assert.Equal(t, "archive", got.Op)
	assert.Equal(t, "trace-1", got.TraceID)

	assert.Nil(t, FromContext(context.Background()))
	assert.Nil(t, FromContext(nil)) //nolint:staticcheck
}

func TestErrAttr(t *testing.T) {
	assert.True(t, Err(nil).Equal(slog.Attr{}))
	assert.Equal(t, "boom", Err(errors.New("boom")).Value.String())
}
