package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestDispatch_EmitsSpanPerEvent(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	em := newTestManager(t, WithTracer(tp.Tracer("engine-test")))

	mustSchedule(t, em, 3, 2, noopTarget("A"))
	mustSchedule(t, em, 0, 0, TargetFunc("B", func(ctx context.Context) {
		assert.NoError(t, Wait(ctx, 1, 0))
	}))

	require.NoError(t, em.Run(context.Background()))

	spans := sr.Ended()
	require.Len(t, spans, 3, "dispatch B, resume B, dispatch A")

	ticks := make([]int64, 0, len(spans))
	for _, span := range spans {
		assert.Equal(t, "engine.dispatch", span.Name())
		attrs := attribute.NewSet(span.Attributes()...)
		tick, ok := attrs.Value("sim.tick")
		require.True(t, ok)
		ticks = append(ticks, tick.AsInt64())
	}
	assert.Equal(t, []int64{0, 1, 3}, ticks)

	last := attribute.NewSet(spans[2].Attributes()...)
	target, _ := last.Value("sim.target")
	prio, _ := last.Value("sim.priority")
	assert.Equal(t, "A", target.AsString())
	assert.Equal(t, int64(2), prio.AsInt64())
}
