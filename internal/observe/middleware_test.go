package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func attributeKey(k string) attribute.Key {
	return attribute.Key(k)
}

func testSetup(t *testing.T) (*Metrics, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	m, reader := newTestMetrics(t)

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	return m, reader, exp
}

func TestMiddleware(t *testing.T) {
	m, reader, exp := testSetup(t)

	var capturedCID string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/memes/{id}", func(w http.ResponseWriter, r *http.Request) {
		capturedCID = CorrelationID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})
	handler := Middleware(m)(mux)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/memes/42", nil))

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Len(t, capturedCID, 32)
	require.Equal(t, capturedCID, rec.Header().Get("X-Correlation-ID"))

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "HTTP GET /api/memes/42", spans[0].Name)

	rm := collect(t, reader)
	met := findMetric(rm, "sobub.http.request.duration")
	require.NotNil(t, met)
	hist, ok := met.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	path, _ := hist.DataPoints[0].Attributes.Value(attributeKey("path"))
	require.Equal(t, "GET /api/memes/{id}", path.AsString())
}

func TestMiddlewareUnmatchedRoute(t *testing.T) {
	m, reader, _ := testSetup(t)
	handler := Middleware(m)(http.NewServeMux())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rm := collect(t, reader)
	met := findMetric(rm, "sobub.http.request.duration")
	require.NotNil(t, met)
	hist := met.Data.(metricdata.Histogram[float64])
	path, _ := hist.DataPoints[0].Attributes.Value(attributeKey("path"))
	require.Equal(t, "unmatched", path.AsString())
}

func TestStatusRecorderHijackUnsupported(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rec.Hijack()
	require.Error(t, err)
}
