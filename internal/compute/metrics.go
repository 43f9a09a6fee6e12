package compute

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports per-stage dispatch activity. A nil *Metrics records
// nothing.
type Metrics struct {
	dispatches *prometheus.CounterVec
	skips      *prometheus.CounterVec
	readiness  *prometheus.GaugeVec
	failed     *prometheus.GaugeVec
	frames     prometheus.Counter
	encode     prometheus.Histogram
}

// NewMetrics registers the slime compute metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		dispatches: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "slime",
				Name:      "stage_dispatches_total",
				Help:      "Compute dispatches recorded per stage",
			},
			[]string{"stage"},
		),
		skips: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "slime",
				Name:      "stage_skips_total",
				Help:      "Frames in which a stage was skipped because its pipeline was loading",
			},
			[]string{"stage"},
		),
		readiness: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "slime",
				Name:      "stage_ready",
				Help:      "1 when the stage pipeline is ready",
			},
			[]string{"stage"},
		),
		failed: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "slime",
				Name:      "stage_compile_failed",
				Help:      "1 when the stage pipeline failed to compile and will never dispatch",
			},
			[]string{"stage"},
		),
		frames: f.NewCounter(prometheus.CounterOpts{
			Namespace: "slime",
			Name:      "frames_total",
			Help:      "Frames processed by the orchestrator",
		}),
		encode: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "slime",
			Name:      "frame_encode_seconds",
			Help:      "Time spent preparing, encoding and submitting one frame",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
	}
}

func (m *Metrics) observeStage(kind StageKind, dispatched bool) {
	if m == nil {
		return
	}
	if dispatched {
		m.dispatches.WithLabelValues(kind.String()).Inc()
		return
	}
	m.skips.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) setReadiness(kind StageKind, r Readiness) {
	if m == nil {
		return
	}
	v := 0.0
	if r == Ready {
		v = 1
	}
	m.readiness.WithLabelValues(kind.String()).Set(v)
}

func (m *Metrics) setFailed(kind StageKind) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(kind.String()).Set(1)
}

func (m *Metrics) observeFrame(d time.Duration) {
	if m == nil {
		return
	}
	m.frames.Inc()
	m.encode.Observe(d.Seconds())
}
