package avplay

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the decoder's Prometheus collectors. They're registered on
// a private registry so several decoders (and tests) can coexist.
type Metrics struct {
	registry *prometheus.Registry

	packetsRead       *prometheus.CounterVec
	packetsDropped    prometheus.Counter
	decodeErrors      prometheus.Counter
	filterErrors      prometheus.Counter
	filterRebuilds    prometheus.Counter
	framesPresented   prometheus.Counter
	seeks             *prometheus.CounterVec
	backpressureWaits prometheus.Counter
	videoQueueDepth   prometheus.Gauge
	stateChanges      *prometheus.CounterVec
}

func newMetrics() *Metrics {
	const namespace, subsystem = "avplay", "decoder"
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		packetsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "packets_read_total",
			Help: "Packets read from the source, by stream type.",
		}, []string{"type"}),
		packetsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "packets_dropped_total",
			Help: "Subtitle and unrecognized packets released without buffering.",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "decode_errors_total",
			Help: "Video packets or frames dropped after a decoder error.",
		}),
		filterErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "filter_errors_total",
			Help: "Video frames dropped after a filter graph error.",
		}),
		filterRebuilds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "filter_rebuilds_total",
			Help: "Filter graphs rebuilt after the decoded frame geometry changed.",
		}),
		framesPresented: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "frames_presented_total",
			Help: "Converted video frames handed to the listener.",
		}),
		seeks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "seeks_total",
			Help: "Seek attempts, by result.",
		}, []string{"result"}),
		backpressureWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "backpressure_waits_total",
			Help: "Read loop iterations skipped because the video queue was full.",
		}),
		videoQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "video_queue_depth",
			Help: "Packets buffered in the video queue.",
		}),
		stateChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "state_changes_total",
			Help: "Play state transitions, by destination state.",
		}, []string{"state"}),
	}
	m.registry.MustRegister(
		m.packetsRead,
		m.packetsDropped,
		m.decodeErrors,
		m.filterErrors,
		m.filterRebuilds,
		m.framesPresented,
		m.seeks,
		m.backpressureWaits,
		m.videoQueueDepth,
		m.stateChanges,
	)
	return m
}

// Registry returns the registry the collectors are registered on, for use
// with promhttp.HandlerFor.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
