package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricRequests        = "testfang.requests"
	metricRequestDuration = "testfang.request.duration"
	metricErrors          = "testfang.errors"
	metricInflight        = "testfang.inflight"
	metricSelected        = "prioritization.selected"

	attrOp        = "op"
	attrStatus    = "status"
	attrAlgorithm = "algorithm"

	// StatusOK marks a successful operation.
	StatusOK = "ok"
	// StatusError marks a failed operation.
	StatusError = "error"
)

// durationBucketBoundaries covers 1ms to 120s.
var durationBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// REDMetrics holds the OTel instruments for Rate, Error, Duration metrics
// plus the number of test cases handed out by prioritizers.
type REDMetrics struct {
	requests        metric.Int64Counter
	requestDuration metric.Float64Histogram
	errors          metric.Int64Counter
	inflight        metric.Int64UpDownCounter
	selected        metric.Int64Counter
}

// NewREDMetrics creates the metric instruments from the given meter.
func NewREDMetrics(mt metric.Meter) (*REDMetrics, error) {
	requests, err := mt.Int64Counter(metricRequests,
		metric.WithDescription("Total number of operations"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRequests, err)
	}

	duration, err := mt.Float64Histogram(metricRequestDuration,
		metric.WithDescription("Operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBucketBoundaries...),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricRequestDuration, err)
	}

	errs, err := mt.Int64Counter(metricErrors,
		metric.WithDescription("Total number of failed operations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricErrors, err)
	}

	inflight, err := mt.Int64UpDownCounter(metricInflight,
		metric.WithDescription("Number of in-flight operations"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricInflight, err)
	}

	selected, err := mt.Int64Counter(metricSelected,
		metric.WithDescription("Test cases placed in a prioritized order"),
		metric.WithUnit("{testcase}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricSelected, err)
	}

	return &REDMetrics{
		requests:        requests,
		requestDuration: duration,
		errors:          errs,
		inflight:        inflight,
		selected:        selected,
	}, nil
}

// RecordRequest records a completed operation.
func (rm *REDMetrics) RecordRequest(ctx context.Context, op, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(attrOp, op),
		attribute.String(attrStatus, status),
	)

	rm.requests.Add(ctx, 1, attrs)
	rm.requestDuration.Record(ctx, duration.Seconds(), attrs)

	if status == StatusError {
		rm.errors.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOp, op)))
	}
}

// TrackInflight increments the in-flight gauge and returns a function to decrement it.
func (rm *REDMetrics) TrackInflight(ctx context.Context, op string) func() {
	attrs := metric.WithAttributes(attribute.String(attrOp, op))
	rm.inflight.Add(ctx, 1, attrs)

	return func() {
		rm.inflight.Add(ctx, -1, attrs)
	}
}

// RecordSelected counts test cases selected by algorithm.
func (rm *REDMetrics) RecordSelected(ctx context.Context, algorithm string, n int) {
	rm.selected.Add(ctx, int64(n), metric.WithAttributes(attribute.String(attrAlgorithm, algorithm)))
}

// Observe runs fn as operation op, tracking it in flight and recording its
// outcome and duration.
func (rm *REDMetrics) Observe(ctx context.Context, op string, fn func(context.Context) error) error {
	done := rm.TrackInflight(ctx, op)
	defer done()

	start := time.Now()
	err := fn(ctx)

	status := StatusOK
	if err != nil {
		status = StatusError
	}

	rm.RecordRequest(ctx, op, status, time.Since(start))

	return err
}
