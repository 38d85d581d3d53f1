package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger(buf *bytes.Buffer) *Logger {
	return New(&Config{Level: "debug", Format: "json", Output: buf, ServiceName: "test"})
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var out map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &out))
	return out
}

func TestEntryUsesContextLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := newBufferLogger(&buf).WithContext(context.Background())
	ctx = SetJobID(SetSourceID(ctx, "dQw4w9WgXcQ"), "job-1")

	With(Fields{"end_frame": int64(60)}).WithFrame(30).WithBackend("easyocr").Info(ctx, "run %s", "closed")

	line := lastLine(t, &buf)
	assert.Equal(t, "run closed", line["message"])
	assert.Equal(t, "test", line["service"])
	assert.Equal(t, "dQw4w9WgXcQ", line[FieldSourceID])
	assert.Equal(t, "job-1", line[FieldJobID])
	assert.Equal(t, 30.0, line[FieldFrame])
	assert.Equal(t, 60.0, line["end_frame"])
	assert.Equal(t, "easyocr", line[FieldBackend])
}

func TestEntrySince(t *testing.T) {
	var buf bytes.Buffer
	ctx := newBufferLogger(&buf).WithContext(context.Background())

	With(Fields{FieldCount: 2}).Since(time.Now().Add(-50 * time.Millisecond)).Warn(ctx, "slow")

	line := lastLine(t, &buf)
	assert.Equal(t, "warning", line["level"])
	assert.GreaterOrEqual(t, line[FieldDurationMs].(float64), 50.0)
}

func TestEntryWithDoesNotMutateParent(t *testing.T) {
	base := With(Fields{"a": 1})
	_ = base.With(Fields{"b": 2})
	assert.Len(t, base.fields, 1)
}

func TestDetachKeepsFieldsDropsCancellation(t *testing.T) {
	var buf bytes.Buffer
	parent, cancel := context.WithCancel(newBufferLogger(&buf).WithContext(context.Background()))
	parent = SetRequestID(parent, "req-9")
	cancel()

	detached := SetComponent(Detach(parent), "extraction")
	require.NoError(t, detached.Err())

	CtxInfo(detached, "started")
	line := lastLine(t, &buf)
	assert.Equal(t, "req-9", line[FieldRequestID])
	assert.Equal(t, "extraction", line[FieldComponent])
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	var buf bytes.Buffer
	prev := GetDefault()
	SetDefaultLogger(newBufferLogger(&buf))
	t.Cleanup(func() { SetDefaultLogger(prev) })

	SetDefaultLogger(nil)
	CtxWarn(context.Background(), "no logger in %s", "ctx")
	assert.Equal(t, "no logger in ctx", lastLine(t, &buf)["message"])
}

func TestNewFromEnvExplicitOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewFromEnv(&EnvConfig{Level: "bogus", Format: "text", Output: &buf, ServiceName: "cli"})
	log.Debug("hidden")
	log.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "service=cli")
	assert.NoError(t, Sync())
}
