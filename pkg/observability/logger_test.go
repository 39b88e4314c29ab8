package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decodeEntry parses one slog JSON line into a flat map
func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.Debug("debug message")
	assert.Zero(t, buf.Len(), "debug suppressed at info level")

	logger.Info("info message")
	require.NotZero(t, buf.Len())
	entry := decodeEntry(t, &buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "info message", entry["msg"])

	for _, log := range []func(string){logger.Warn, logger.Error} {
		buf.Reset()
		log("noted")
		assert.NotZero(t, buf.Len())
	}
}

func TestLogger_WithField(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(InfoLevel, &buf).WithField("key", "value").Info("message")

	assert.Equal(t, "value", decodeEntry(t, &buf)["key"])
}

func TestLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(InfoLevel, &buf).WithFields(map[string]interface{}{
		"key1": "value1",
		"key2": 42,
	}).Info("message")

	entry := decodeEntry(t, &buf)
	assert.Equal(t, "value1", entry["key1"])
	assert.Equal(t, float64(42), entry["key2"])
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(InfoLevel, &buf).WithComponent("event-relay").Info("started")

	assert.Equal(t, "event-relay", decodeEntry(t, &buf)["component"])
}

func TestLogger_WithError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(InfoLevel, &buf)

	logger.WithError(errors.New("boom")).Error("something went wrong")
	assert.Equal(t, "boom", decodeEntry(t, &buf)["error"])

	// A nil error adds nothing.
	buf.Reset()
	logger.WithError(nil).Info("fine")
	assert.NotContains(t, decodeEntry(t, &buf), "error")
}

func TestLogger_Formatters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(DebugLevel, &buf)

	tests := []struct {
		name string
		log  func()
		want string
	}{
		{"Debugf", func() { logger.Debugf("test %s %d", "string", 42) }, "test string 42"},
		{"Infof", func() { logger.Infof("test %d", 123) }, "test 123"},
		{"Warnf", func() { logger.Warnf("warning %s", "test") }, "warning test"},
		{"Errorf", func() { logger.Errorf("error %v", "test") }, "error test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			tt.log()
			assert.Equal(t, tt.want, decodeEntry(t, &buf)["msg"])
		})
	}
}

func TestContextHelpers(t *testing.T) {
	t.Run("request id", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-123")
		assert.Equal(t, "req-123", GetRequestID(ctx))
		assert.Empty(t, GetRequestID(context.Background()))
	})

	t.Run("user id", func(t *testing.T) {
		ctx := WithUserID(context.Background(), "user-456")
		assert.Equal(t, "user-456", GetUserID(ctx))
	})

	t.Run("logger round trip", func(t *testing.T) {
		logger := NewLogger(InfoLevel, nil)
		ctx := WithLogger(context.Background(), logger)
		assert.Same(t, logger, GetLogger(ctx))
	})

	t.Run("from context carries ids", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithLogger(context.Background(), NewLogger(InfoLevel, &buf))
		ctx = WithRequestID(ctx, "req-123")
		ctx = WithUserID(ctx, "user-456")

		FromContext(ctx).Info("test message")

		entry := decodeEntry(t, &buf)
		assert.Equal(t, "req-123", entry["request_id"])
		assert.Equal(t, "user-456", entry["user_id"])
	})
}

func TestLogLevel_String(t *testing.T) {
	levels := map[LogLevel]string{
		DebugLevel: "DEBUG",
		InfoLevel:  "INFO",
		WarnLevel:  "WARN",
		ErrorLevel: "ERROR",
	}
	for level, want := range levels {
		assert.Equal(t, want, level.String())
	}
	assert.Equal(t, "INFO", LogLevel(99).String())
}
