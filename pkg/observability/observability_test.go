package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceStageExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Writer = &buf

	shutdown, err := Initialize(cfg)
	require.NoError(t, err)

	jt := NewJobTracer("curate-dynamic")
	err = jt.TraceStage(context.Background(), "merge", func(ctx context.Context) error {
		_, span := NewSpan(ctx, "read-feature")
		span.SetAttribute("feature", "tract_banks_count")
		span.SetAttribute("rows", 200)
		span.End()
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("no feature directories")
	err = jt.TraceStage(context.Background(), "list", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	require.NoError(t, shutdown(context.Background()))
	out := buf.String()
	assert.Contains(t, out, "curate-dynamic.merge")
	assert.Contains(t, out, "read-feature")
	assert.Contains(t, out, "tract_banks_count")
	assert.Contains(t, out, "no feature directories")
}

func TestDisabledTracing(t *testing.T) {
	shutdown, err := Initialize(DefaultConfig())
	require.NoError(t, err)

	ran := false
	err = NewJobTracer("points").TraceStage(context.Background(), "join", func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.NoError(t, shutdown(context.Background()))
}
