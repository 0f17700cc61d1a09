package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const MetricsPrefix = "ktbench_"

// Phases of a run, used as the phase label.
const (
	PhaseReset     = "reset"
	PhaseUpdate    = "update"
	PhaseConfigure = "configure"
	PhaseLaunch    = "launch"
	PhaseObserve   = "observe"
	PhaseDrain     = "drain"
	PhaseCollect   = "collect"
)

const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// Metrics of one sweep. They're written to a textfile at the end of the sweep
// rather than served, since the benchmark is a short-lived command.
type Metrics struct {
	registry      *prometheus.Registry
	points        *prometheus.CounterVec
	phaseDuration *prometheus.HistogramVec
	hosts         prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		points: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricsPrefix + "sweep_points",
				Help: "Number of sweep points run, by outcome",
			},
			[]string{"outcome"},
		),
		phaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricsPrefix + "phase_duration_seconds",
				Help:    "Time taken by each phase of a run",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"phase"},
		),
		hosts: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricsPrefix + "hosts",
				Help: "Number of hosts taking part in the benchmark",
			},
		),
	}
}

// Registerer lets other components, e.g., the logging hook, export their metrics with the sweep's.
func (m *Metrics) Registerer() prometheus.Registerer {
	return m.registry
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) RecordPoint(outcome string) {
	m.points.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordPhase(phase string, duration time.Duration) {
	m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

func (m *Metrics) SetHosts(n int) {
	m.hosts.Set(float64(n))
}

// WriteToTextfile writes every metric to path in the text exposition format, creating its directory if needed.
func (m *Metrics) WriteToTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(prometheus.WriteToTextfile(path, m.registry))
}
