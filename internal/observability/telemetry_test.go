package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

func TestNewTracerProvider_RecordsSpans(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()

	tp, err := NewTracerProvider(ctx, "rts-aggro-test", 0, trace.WithSpanProcessor(recorder))
	require.NoError(t, err)
	defer tp.Shutdown(ctx)

	_, span := tp.Tracer("test").Start(ctx, "world.Tick")
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "world.Tick", ended[0].Name())

	found := false
	for _, attr := range ended[0].Resource().Attributes() {
		if attr.Key == semconv.ServiceNameKey {
			found = true
			assert.Equal(t, "rts-aggro-test", attr.Value.AsString())
		}
	}
	assert.True(t, found, "service.name в ресурсе")
}

func TestEndpointOrDefault(t *testing.T) {
	assert.Equal(t, "localhost:4318", endpointOrDefault(""))
	assert.Equal(t, "otel:4318", endpointOrDefault("otel:4318"))
}
