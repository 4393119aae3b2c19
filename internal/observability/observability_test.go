package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/testfang/internal/observability"
)

func setupTestMeter(t *testing.T) (*observability.REDMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	return red, reader
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	require.NoError(t, reader.Collect(context.Background(), &rm))

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for idx := range rm.ScopeMetrics {
		for midx := range rm.ScopeMetrics[idx].Metrics {
			if rm.ScopeMetrics[idx].Metrics[midx].Name == name {
				return &rm.ScopeMetrics[idx].Metrics[midx]
			}
		}
	}

	return nil
}

func sumValue(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()

	require.NotNil(t, m)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}

	return total
}

func TestREDMetrics_Observe(t *testing.T) {
	t.Parallel()

	red, reader := setupTestMeter(t)
	ctx := context.Background()

	require.NoError(t, red.Observe(ctx, "prioritize", func(context.Context) error { return nil }))

	errBoom := errors.New("boom")
	require.ErrorIs(t, red.Observe(ctx, "prioritize", func(context.Context) error { return errBoom }), errBoom)

	rm := collectMetrics(t, reader)

	assert.Equal(t, int64(2), sumValue(t, findMetric(rm, "testfang.requests")))
	assert.Equal(t, int64(1), sumValue(t, findMetric(rm, "testfang.errors")))
	assert.Equal(t, int64(0), sumValue(t, findMetric(rm, "testfang.inflight")))
	assert.NotNil(t, findMetric(rm, "testfang.request.duration"))
}

func TestREDMetrics_RecordSelected(t *testing.T) {
	t.Parallel()

	red, reader := setupTestMeter(t)

	red.RecordSelected(context.Background(), "duplation", 5)
	red.RecordSelected(context.Background(), "general-ignore", 2)

	assert.Equal(t, int64(7), sumValue(t, findMetric(collectMetrics(t, reader), "prioritization.selected")))
}

func TestTracingHandler_InjectsTraceContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	inner := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := slog.New(observability.NewTracingHandler(inner, "test-svc", observability.ModeMCP))

	traceID, err := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	require.NoError(t, err)

	spanID, err := trace.SpanIDFromHex("0102030405060708")
	require.NoError(t, err)

	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	logger.WithGroup("g").InfoContext(ctx, "hello", "k", "v")

	var record map[string]any

	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", record["g"].(map[string]any)["trace_id"])
	assert.Equal(t, "test-svc", record["service"])
	assert.Equal(t, "mcp", record["mode"])
}

func TestNewLogger_LevelAndFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := observability.DefaultConfig()
	cfg.LogLevel = observability.ParseLevel("warn")

	logger := observability.NewLogger(&buf, cfg)
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
	assert.Contains(t, buf.String(), "service=testfang")

	assert.Equal(t, slog.LevelInfo, observability.ParseLevel("nonsense"))
	assert.Equal(t, slog.LevelDebug, observability.ParseLevel("DEBUG"))
}

func TestInit_Noop(t *testing.T) {
	t.Parallel()

	p, err := observability.Init(context.Background(), observability.DefaultConfig(), io.Discard)
	require.NoError(t, err)

	assert.NotNil(t, p.Tracer)
	assert.NotNil(t, p.Metrics)
	assert.Nil(t, p.MetricsHandler)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_PrometheusEndpoint(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.PrometheusAddr = "127.0.0.1:0"

	p, err := observability.Init(context.Background(), cfg, io.Discard)
	require.NoError(t, err)
	require.NotNil(t, p.MetricsHandler)

	p.Metrics.RecordSelected(context.Background(), "duplation", 3)

	srv, err := observability.ServeMetrics(cfg.PrometheusAddr, p.MetricsHandler, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+srv.Addr()+"/metrics", http.NoBody)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), "prioritization_selected"), string(body))

	require.NoError(t, srv.Shutdown(ctx))
	require.NoError(t, p.Shutdown(ctx))
}

func TestParseOTLPHeaders(t *testing.T) {
	t.Parallel()

	assert.Nil(t, observability.ParseOTLPHeaders(""))
	assert.Nil(t, observability.ParseOTLPHeaders("junk"))
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, observability.ParseOTLPHeaders(" a = 1 ,b=2"))
}
