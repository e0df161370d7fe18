// Package observe provides the server's observability primitives:
// OpenTelemetry metric instruments for the voice pipeline and the SDK
// bootstrap that bridges them to a Prometheus /metrics endpoint.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Parley metrics.
const meterName = "github.com/parleyvoice/parley"

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// voice-pipeline stage latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// Metrics holds the OTel metric instruments for the turn pipeline. All
// fields are safe for concurrent use.
//
// Metrics implements the turn engine's StageRecorder and ActiveGauge
// collaborator interfaces.
type Metrics struct {
	// StageDuration tracks per-stage turn latency. Recorded with
	// attribute.String("stage", ...) — transcription, generation, synthesis.
	StageDuration metric.Float64Histogram

	// Turns counts processed turns. Recorded with
	// attribute.String("status", ...) — ok or the failing stage.
	Turns metric.Int64Counter

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// UtteranceDuration tracks the audio length of segmented utterances.
	UtteranceDuration metric.Float64Histogram

	// bufferDepth is observed through registered per-session depth functions.
	bufferDepth metric.Int64ObservableGauge

	mu       sync.Mutex
	depthFns map[string]func() int
}

// NewMetrics creates a fully initialised [Metrics] using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{depthFns: make(map[string]func() int)}
	var err error

	if met.StageDuration, err = m.Float64Histogram("parley.turn.stage.duration",
		metric.WithDescription("Latency of one pipeline stage within a turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("parley.turns",
		metric.WithDescription("Total processed turns by outcome status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("parley.active_sessions",
		metric.WithDescription("Number of live voice sessions."),
	); err != nil {
		return nil, err
	}
	if met.UtteranceDuration, err = m.Float64Histogram("parley.utterance.duration",
		metric.WithDescription("Audio length of segmented utterances."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if met.bufferDepth, err = m.Int64ObservableGauge("parley.frame_buffer.depth",
		metric.WithDescription("Buffered frames awaiting consumption, per session."),
	); err != nil {
		return nil, err
	}
	if _, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		met.mu.Lock()
		defer met.mu.Unlock()
		for session, fn := range met.depthFns {
			o.ObserveInt64(met.bufferDepth, int64(fn()),
				metric.WithAttributes(attribute.String("session", session)))
		}
		return nil
	}, met.bufferDepth); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], creating it on first
// call from [otel.GetMeterProvider]. Panics if instrument creation fails,
// which cannot happen with the global provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// ObserveStage records the latency of one pipeline stage.
func (m *Metrics) ObserveStage(ctx context.Context, stage string, d time.Duration) {
	m.StageDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("stage", stage)))
}

// CountTurn records one processed turn with its outcome status.
func (m *Metrics) CountTurn(ctx context.Context, status string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// SessionStarted increments the live-session gauge.
func (m *Metrics) SessionStarted(ctx context.Context) {
	m.ActiveSessions.Add(ctx, 1)
}

// SessionEnded decrements the live-session gauge.
func (m *Metrics) SessionEnded(ctx context.Context) {
	m.ActiveSessions.Add(ctx, -1)
}

// ObserveUtterance records the audio length of a segmented utterance.
func (m *Metrics) ObserveUtterance(ctx context.Context, d time.Duration) {
	m.UtteranceDuration.Record(ctx, d.Seconds())
}

// WatchBufferDepth registers a depth function observed on every metrics
// collection, attributed to the given session. The returned function
// unregisters it; call it when the session ends.
func (m *Metrics) WatchBufferDepth(session string, depth func() int) (unwatch func()) {
	m.mu.Lock()
	m.depthFns[session] = depth
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.depthFns, session)
		m.mu.Unlock()
	}
}
