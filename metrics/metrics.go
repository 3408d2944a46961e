package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "notedur"

// Metrics holds the collectors for one session on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	Events            *prometheus.CounterVec
	SamplesRecorded   prometheus.Counter
	UnmatchedEnds     prometheus.Counter
	NegativeDurations prometheus.Counter
	NonFinite         prometheus.Counter
	Clears            prometheus.Counter
	ConfigRejected    *prometheus.CounterVec

	BufferSize   prometheus.Gauge
	PendingNotes prometheus.Gauge
	WindowSize   prometheus.Gauge

	HoldDuration prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Note events ingested by kind",
			},
			[]string{"kind"},
		),
		SamplesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_recorded_total",
			Help:      "Completed start/end pairs recorded as duration samples",
		}),
		UnmatchedEnds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unmatched_ends_total",
			Help:      "End events ignored because no start was pending",
		}),
		NegativeDurations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "negative_durations_total",
			Help:      "Samples whose end timestamp preceded the start",
		}),
		NonFinite: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "non_finite_dropped_total",
			Help:      "Events and durations dropped because they were NaN or infinite",
		}),
		Clears: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clears_total",
			Help:      "Times the recorder was cleared",
		}),
		ConfigRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_rejected_total",
				Help:      "Configuration updates rejected by field",
			},
			[]string{"field"},
		),
		BufferSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_samples",
			Help:      "Samples currently retained",
		}),
		PendingNotes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_notes",
			Help:      "Notes currently held down",
		}),
		WindowSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_size",
			Help:      "Configured maximum number of retained samples",
		}),
		HoldDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "hold_duration_ms",
			Help:      "Note hold durations in milliseconds",
			Buckets:   []float64{10, 25, 50, 100, 150, 250, 500, 1000, 2500, 5000, 10000},
		}),
	}

	m.Registry.MustRegister(
		m.Events,
		m.SamplesRecorded,
		m.UnmatchedEnds,
		m.NegativeDurations,
		m.NonFinite,
		m.Clears,
		m.ConfigRejected,
		m.BufferSize,
		m.PendingNotes,
		m.WindowSize,
		m.HoldDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
