package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	l := slog.New(h)
	return NewSlogLogger(l), &buf
}

func TestSlogLogger_Levels_WriteExpectedOutput(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "poll", "session_id", "ab12")
	log.Info(ctx, "uploaded", "key", "minutes/2026/10/x.jpg")
	log.Warn(ctx, "relay_lost", "attempt", 2)
	log.Error(ctx, "confirm_failed", "status", 502)

	out := buf.String()
	for _, want := range []string{
		"level=DEBUG msg=poll session_id=ab12",
		"level=INFO msg=uploaded key=minutes/2026/10/x.jpg",
		"level=WARN msg=relay_lost attempt=2",
		"level=ERROR msg=confirm_failed status=502",
	} {
		assert.Contains(t, out, want)
	}
}

func TestSlogLogger_With_AddsAttributes(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log2 := log.With("req_id", "123", "session_id", "s1")
	log2.Info(ctx, "hello", "k", "v")

	out := buf.String()
	wantSubs := []string{
		"level=INFO",
		"msg=hello",
		"req_id=123",
		"session_id=s1",
		"k=v",
	}
	for _, s := range wantSubs {
		if !strings.Contains(out, s) {
			t.Fatalf("expected %q in output, got:\n%s", s, out)
		}
	}
}

func TestSlogLogger_ContextDoesNotPanic(t *testing.T) {
	log, _ := newTestLogger(t)

	ctx := context.TODO()
	log.Info(ctx, "ctx-ok")
	log.Debug(ctx, "ctx-ok")
	log.Warn(ctx, "ctx-ok")
	log.Error(ctx, "ctx-ok")
}

func TestSlogLogger_SessionFromContext(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := WithSession(context.Background(), "9f2c", "minutes")

	log.Info(ctx, "subscribed", "status", "pending")
	log.Warn(ctx, "nudge rejected", "session_id", "override")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "msg=subscribed session_id=9f2c doc_type=minutes status=pending")
	assert.Contains(t, lines[1], "doc_type=minutes session_id=override")
	assert.NotContains(t, lines[1], "session_id=9f2c")

	id, ok := SessionFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "9f2c", id)

	_, ok = SessionFromContext(context.Background())
	assert.False(t, ok)
	assert.Equal(t, context.Background(), WithSession(context.Background(), "", "minutes"))
}

func TestZapLogger_WritesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewZapLogger(zap.New(core))
	ctx := context.Background()

	log.With("session_id", "abc").Info(ctx, "subscribed", "doc_type", "minutes")
	log.Debug(ctx, "frame dropped")

	log.Info(WithSession(ctx, "77aa", "ordinances"), "completed")

	require.Equal(t, 3, logs.Len())
	assert.Equal(t, "77aa", logs.All()[2].ContextMap()["session_id"])
	assert.Equal(t, "ordinances", logs.All()[2].ContextMap()["doc_type"])
	first := logs.All()[0]
	assert.Equal(t, "subscribed", first.Message)
	assert.Equal(t, "abc", first.ContextMap()["session_id"])
	assert.Equal(t, "minutes", first.ContextMap()["doc_type"])
	assert.Equal(t, zapcore.DebugLevel, logs.All()[1].Level)
}

func TestNew_Formats(t *testing.T) {
	for _, f := range []string{"", "json", "text", "zap"} {
		l, err := New(f, "info")
		require.NoError(t, err, f)
		require.NotNil(t, l, f)
	}
	_, err := New("xml", "info")
	require.Error(t, err)
}

func TestNewWriter_LevelAndSink(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWriter(&buf, "text", "warn")
	require.NoError(t, err)

	l.Info(context.Background(), "hidden")
	l.Warn(context.Background(), "relay unavailable", "session_id", "abc")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "relay unavailable")
	assert.Contains(t, out, "session_id=abc")
}

func TestNop_DoesNotPanic(t *testing.T) {
	var l Logger = Nop{}
	l.With("a", 1).Info(context.Background(), "ok")
}
