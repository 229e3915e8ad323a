package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"smartmail/pkg/trace"
)

func TestNewLoggerLevels(t *testing.T) {
	assert.True(t, NewLogger("local").Core().Enabled(zapcore.DebugLevel))
	assert.False(t, NewLogger("production").Core().Enabled(zapcore.DebugLevel))

	t.Setenv("LOG_LEVEL", "warn")
	assert.False(t, NewLogger("local").Core().Enabled(zapcore.InfoLevel))
}

func TestWithTrace(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	WithTrace(trace.WithContext(context.Background(), "t-1"), base).Info("with")
	WithTrace(context.Background(), base).Info("without")

	entries := logs.All()
	assert.Len(t, entries, 2)
	assert.Equal(t, "t-1", entries[0].ContextMap()["trace_id"])
	assert.NotContains(t, entries[1].ContextMap(), "trace_id")
}
