package tracing

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func TestSetup_Stdout(t *testing.T) {
	var buf bytes.Buffer

	shutdown, err := Setup(context.Background(), Options{
		Exporter:       "stdout",
		ServiceName:    "flight-change-api",
		ServiceVersion: "test",
		Writer:         &buf,
		Logger:         zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = Setup(context.Background(), Options{Exporter: ExporterNone}) })

	_, span := otel.Tracer("tracing_test").Start(context.Background(), "ratelimiter.Check")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "ratelimiter.Check")
	assert.Contains(t, buf.String(), "flight-change-api")
}

func TestSetup_None(t *testing.T) {
	shutdown, err := Setup(context.Background(), Options{Exporter: "NONE"})
	require.NoError(t, err)

	_, span := otel.Tracer("tracing_test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_UnknownExporter(t *testing.T) {
	_, err := Setup(context.Background(), Options{Exporter: "jaeger"})
	assert.Error(t, err)
}

func TestMiddleware_ContinuesRemoteTrace(t *testing.T) {
	SetPropagator()

	var got trace.SpanContext
	h := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = trace.SpanContextFromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodPost, "/api/get-flight-details", nil)
	r.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	h.ServeHTTP(httptest.NewRecorder(), r)

	require.True(t, got.IsValid())
	assert.True(t, got.IsRemote())
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", got.TraceID().String())
}
