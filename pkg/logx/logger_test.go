package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(format Format, level Level) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	l := New(Config{Level: level, Format: format, Service: "tenantry", Output: buf})
	l.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return l, buf
}

func TestJSONIncludesFieldsAndError(t *testing.T) {
	logger, buf := newTestLogger(FormatJSON, LevelInfo)

	logger.WithFields(Fields{"tenant_id": "t-1", "message": "shadowed"}).
		WithError(errors.New("boom")).
		Error("activation failed")

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "ERROR", out["level"])
	assert.Equal(t, "activation failed", out["message"])
	assert.Equal(t, "t-1", out["tenant_id"])
	assert.Equal(t, "boom", out["error"])
	assert.Equal(t, "tenantry", out["service"])
}

func TestConsoleSortsFields(t *testing.T) {
	logger, buf := newTestLogger(FormatConsole, LevelDebug)

	logger.WithFields(Fields{"z": 1, "a": "x"}).Info("hello")

	assert.Equal(t, "2026-01-02T03:04:05Z [INFO] hello a=x z=1\n", buf.String())
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newTestLogger(FormatConsole, LevelWarn)

	logger.WithField("k", "v").Info("hidden")
	assert.Empty(t, buf.String())

	logger.WithField("k", "v").Warn("shown")
	assert.Contains(t, buf.String(), "[WARN]")
	assert.Contains(t, buf.String(), "k=v")

	buf.Reset()
	logger.SetLevel(LevelOff)
	logger.WithField("k", "v").Error("silenced")
	assert.Empty(t, buf.String())
}

func TestEntriesDoNotShareFields(t *testing.T) {
	logger, buf := newTestLogger(FormatJSON, LevelInfo)
	base := logger.WithField("tenant_id", "t-1")

	base.WithField("step", "a").Info("one")
	base.Info("two")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"step":"a"`)
	assert.NotContains(t, lines[1], "step")
}

func TestWithContextCopiesRequestID(t *testing.T) {
	logger, buf := newTestLogger(FormatJSON, LevelDebug)
	ctx := ContextWithRequestID(context.Background(), "req-42")

	logger.entry().WithContext(ctx).Debug("hello")
	assert.Contains(t, buf.String(), `"request_id":"req-42"`)

	buf.Reset()
	logger.entry().WithContext(context.Background()).Debug("bare")
	assert.NotContains(t, buf.String(), "request_id")
}

func TestCallerPointsAtCallSite(t *testing.T) {
	logger, buf := newTestLogger(FormatJSON, LevelInfo)
	logger.cfg.Caller = true

	logger.WithField("k", 1).Info("where")
	assert.Contains(t, buf.String(), `"caller":"logger_test.go:`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelDebug, ParseLevel(" debug "))
	assert.Equal(t, LevelOff, ParseLevel("off"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}
