package telemetry

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Setup replaces the otel globals, so these tests do not run in parallel.

func TestSetup_None(t *testing.T) {
	p, err := Setup(context.Background(), Options{Exporter: ExporterNone})
	require.NoError(t, err)
	require.NotNil(t, p.TracerProvider)
	require.NotNil(t, p.MeterProvider)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestSetup_Stdout(t *testing.T) {
	var buf bytes.Buffer
	ctx := context.Background()

	p, err := Setup(ctx, Options{Exporter: ExporterStdout, ServiceName: "expense-approval-test", Writer: &buf})
	require.NoError(t, err)

	_, span := p.TracerProvider.Tracer("test").Start(ctx, "approval.CastVote")
	span.End()

	counter, err := p.MeterProvider.Meter("test").Int64Counter("approval.votes")
	require.NoError(t, err)
	counter.Add(ctx, 1)

	require.NoError(t, p.Shutdown(ctx))
	require.Contains(t, buf.String(), "approval.CastVote")
	require.Contains(t, buf.String(), "approval.votes")
	require.Contains(t, buf.String(), "expense-approval-test")
}

func TestSetup_OTLPHTTP(t *testing.T) {
	p, err := Setup(context.Background(), Options{
		Exporter:    ExporterOTLPHTTP,
		Endpoint:    "http://127.0.0.1:4318",
		ServiceName: "expense-approval-test",
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	// Nothing listens on the endpoint; only construction is under test.
	_ = p.Shutdown(ctx)
}

func TestSetup_UnknownExporter(t *testing.T) {
	_, err := Setup(context.Background(), Options{Exporter: "zipkin"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "zipkin")
}
