package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitRejectsBadLevel(t *testing.T) {
	err := Init(Config{Level: "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestWithContextAddsFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Set(zap.New(core))
	t.Cleanup(func() { Set(nil) })

	ctx := context.WithValue(context.Background(), JobKey, "points")
	ctx = context.WithValue(ctx, FeatureKey, "banks")
	WithContext(ctx).Info("wrote feature")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "points", fields["job"])
	assert.Equal(t, "banks", fields["feature"])
	assert.NotContains(t, fields, "run_id")
}

func TestGetInitializesDefault(t *testing.T) {
	Set(nil)
	assert.NotNil(t, Get())
}
