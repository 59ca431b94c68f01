package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "vitalwatch_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	ticksTotal   *prometheus.CounterVec
	tickDuration *prometheus.HistogramVec
	tickDevices  prometheus.Histogram

	pipelineFailures *prometheus.CounterVec

	readingsGenerated prometheus.Counter
	alertsEmitted     *prometheus.CounterVec

	persistFailures *prometheus.CounterVec

	broadcastDropped  *prometheus.CounterVec
	streamSubscribers prometheus.Gauge
)

// Init registers monitoring metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		ticksTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ticks_total",
				Help: "Total monitoring cycles by result",
			},
			[]string{"result"},
		)
		tickDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "tick_duration_seconds",
				Help:    "Monitoring cycle duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		tickDevices = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "tick_devices",
				Help:    "Eligible devices per monitoring cycle",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		)

		pipelineFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "device_pipeline_failures_total",
				Help: "Total per-device pipeline failures by reason",
			},
			[]string{"reason"},
		)

		readingsGenerated = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_generated_total",
				Help: "Total readings produced by the generator",
			},
		)
		alertsEmitted = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_emitted_total",
				Help: "Total alerts emitted by category and severity",
			},
			[]string{"category", "severity"},
		)

		persistFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "persist_failures_total",
				Help: "Total persistence failures by record kind",
			},
			[]string{"kind"},
		)

		broadcastDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "broadcast_dropped_total",
				Help: "Total events dropped for slow subscribers by device",
			},
			[]string{"device"},
		)
		streamSubscribers = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "stream_subscribers",
				Help: "Currently connected stream subscribers",
			},
		)

		prometheus.MustRegister(
			ticksTotal,
			tickDuration,
			tickDevices,
			pipelineFailures,
			readingsGenerated,
			alertsEmitted,
			persistFailures,
			broadcastDropped,
			streamSubscribers,
		)
	})
}

// ObserveTick records a cycle's result, duration and fan-out size.
func ObserveTick(result string, duration time.Duration, deviceCount int) {
	if result == "" {
		result = resultSuccess
	}
	if ticksTotal != nil {
		ticksTotal.WithLabelValues(result).Inc()
	}
	if tickDuration != nil {
		tickDuration.WithLabelValues(result).Observe(duration.Seconds())
	}
	if tickDevices != nil && deviceCount > 0 {
		tickDevices.Observe(float64(deviceCount))
	}
}

// IncPipelineFailure increments the per-device pipeline failure counter.
func IncPipelineFailure(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if pipelineFailures != nil {
		pipelineFailures.WithLabelValues(reason).Inc()
	}
}

// IncReadingGenerated increments the generated reading counter.
func IncReadingGenerated() {
	if readingsGenerated != nil {
		readingsGenerated.Inc()
	}
}

// IncAlertEmitted increments the alert counter.
func IncAlertEmitted(category, severity string) {
	if alertsEmitted != nil {
		alertsEmitted.WithLabelValues(category, severity).Inc()
	}
}

// IncPersistFailure increments the persistence failure counter.
func IncPersistFailure(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	if persistFailures != nil {
		persistFailures.WithLabelValues(kind).Inc()
	}
}

// IncBroadcastDropped increments the slow-subscriber drop counter.
func IncBroadcastDropped(deviceID string) {
	if deviceID == "" {
		deviceID = "unknown"
	}
	if broadcastDropped != nil {
		broadcastDropped.WithLabelValues(deviceID).Inc()
	}
}

// AddStreamSubscribers adjusts the connected subscriber gauge.
func AddStreamSubscribers(delta int) {
	if streamSubscribers != nil {
		streamSubscribers.Add(float64(delta))
	}
}
