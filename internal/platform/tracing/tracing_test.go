package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"domainreader/internal/platform/config"
)

func TestNewProvider(t *testing.T) {
	t.Run("stdout exporter writes ended spans on shutdown", func(t *testing.T) {
		var buf bytes.Buffer
		tp, err := NewProvider(config.TracingConfig{Exporter: "stdout", SampleRatio: 1}, &buf)
		require.NoError(t, err)

		_, span := tp.Tracer("domainreader/reader").Start(context.Background(), "reader.Resolve")
		span.End()
		require.NoError(t, tp.Shutdown(context.Background()))

		assert.Contains(t, buf.String(), "reader.Resolve")
		assert.Contains(t, buf.String(), serviceName)
	})

	t.Run("zero ratio samples nothing", func(t *testing.T) {
		var buf bytes.Buffer
		tp, err := NewProvider(config.TracingConfig{Exporter: "stdout", SampleRatio: 0}, &buf)
		require.NoError(t, err)

		_, span := tp.Tracer("domainreader/reader").Start(context.Background(), "reader.Resolve")
		span.End()
		require.NoError(t, tp.Shutdown(context.Background()))

		assert.Empty(t, buf.String())
	})

	t.Run("unknown exporter", func(t *testing.T) {
		_, err := NewProvider(config.TracingConfig{Exporter: "zipkin"}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "zipkin")
	})
}

func TestSetup(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	t.Run("none keeps the global provider", func(t *testing.T) {
		shutdown, err := Setup(config.TracingConfig{Exporter: "none"}, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Same(t, prev, otel.GetTracerProvider())
		assert.NoError(t, shutdown(context.Background()))
	})

	t.Run("stdout installs the sdk provider", func(t *testing.T) {
		var buf bytes.Buffer
		shutdown, err := Setup(config.TracingConfig{Exporter: "stdout", SampleRatio: 1}, &buf)
		require.NoError(t, err)
		assert.IsType(t, &sdktrace.TracerProvider{}, otel.GetTracerProvider())

		_, span := otel.Tracer("domainreader/reader").Start(context.Background(), "reader.execute")
		span.End()
		require.NoError(t, shutdown(context.Background()))
		assert.Contains(t, buf.String(), "reader.execute")
	})
}
