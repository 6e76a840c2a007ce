package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupWithoutEndpointReturnsNoopShutdown(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	shutdown, err := Setup(context.Background(), "run-1")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestStartSpanTagsAttributesWithoutPanicking(t *testing.T) {
	ctx, span := StartSpan(context.Background(), SpanTick, "run-1", "agent-1", "task-1")
	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
	span.End()
}

func TestMarkResultHandlesNilSpan(t *testing.T) {
	assert.NotPanics(t, func() { MarkResult(nil, errors.New("boom")) })
}

func TestMarkResultOnRealSpanDoesNotPanic(t *testing.T) {
	_, span := otel.Tracer("test").Start(context.Background(), "span")
	assert.NotPanics(t, func() { MarkResult(span, nil) })
	assert.NotPanics(t, func() { MarkResult(span, errors.New("boom")) })
}
