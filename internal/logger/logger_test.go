package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestParseLogLevel verifies mapping from strings to zapcore.Level and handling of unknown values.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"panic":   zapcore.PanicLevel,
		"fatal":   zapcore.FatalLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok, s)
		require.Equal(t, lvl, got)
	}

	_, ok := ParseLogLevel("unknown")
	require.False(t, ok)
}

// TestContextHelpers checks that names and fields attached to a context reach the output.
func TestContextHelpers(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := ToContext(context.Background(), zap.New(core).Sugar())
	ctx = WithName(ctx, "cul-updater")
	ctx = WithKV(ctx, "run_id", "abc")
	ctx = WithFields(ctx, zap.String("host", "api.github.com"))

	InfoKV(ctx, "Resolving", "attempt", 1)
	Warnf(ctx, "probe %s failed", "1.1.1.1")

	entries := logs.All()
	require.Len(t, entries, 2)
	require.Equal(t, "cul-updater", entries[0].LoggerName)
	require.Equal(t, "Resolving", entries[0].Message)

	fields := entries[0].ContextMap()
	require.Equal(t, "abc", fields["run_id"])
	require.Equal(t, "api.github.com", fields["host"])
	require.EqualValues(t, 1, fields["attempt"])

	require.Equal(t, zapcore.WarnLevel, entries[1].Level)
	require.Equal(t, "probe 1.1.1.1 failed", entries[1].Message)
}

// TestFromContextFallsBackToGlobal ensures a bare context yields the global logger.
func TestFromContextFallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, Logger(), FromContext(context.Background()))
}
