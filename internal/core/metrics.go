package core

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"metsicore/pkg/domain"
)

// EngineCollector exposes schedule-builder Prometheus metrics. It implements
// BuildObserver so it can be handed to a build via Options.
type EngineCollector struct {
	NodesExpanded       prometheus.Counter
	BranchesFailed      prometheus.Counter
	OperationsRejected  *prometheus.CounterVec
	PeriodDuration      prometheus.Histogram
	FrontierSize        prometheus.Gauge
	TrajectoriesCreated prometheus.Counter
}

var _ BuildObserver = (*EngineCollector)(nil)

// NewEngineCollector registers engine metrics against reg. A nil registerer
// falls back to the Prometheus default.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &EngineCollector{
		NodesExpanded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "metsi_engine_nodes_expanded_total",
			Help: "Cumulative number of frontier nodes expanded by the schedule builder.",
		}),
		BranchesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "metsi_engine_branches_failed_total",
			Help: "Cumulative number of branches marked failed (growth failure or exhaustion).",
		}),
		OperationsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "metsi_engine_operations_rejected_total",
			Help: "Cumulative number of operation applications pruned, by rejection reason.",
		}, []string{"reason"}),
		PeriodDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "metsi_engine_period_duration_seconds",
			Help:    "Duration of one full period expansion across the frontier.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		FrontierSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "metsi_engine_frontier_size",
			Help: "Number of stand states on the frontier of the period being expanded.",
		}),
		TrajectoriesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "metsi_engine_children_created_total",
			Help: "Cumulative number of child stand states committed to trajectory trees.",
		}),
	}

	collectors := []prometheus.Collector{
		c.NodesExpanded,
		c.BranchesFailed,
		c.OperationsRejected,
		c.PeriodDuration,
		c.FrontierSize,
		c.TrajectoriesCreated,
	}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// PeriodStarted implements BuildObserver.
func (c *EngineCollector) PeriodStarted(_ int, frontier int) {
	c.FrontierSize.Set(float64(frontier))
}

// NodeExpanded implements BuildObserver.
func (c *EngineCollector) NodeExpanded(_ int, children int) {
	c.NodesExpanded.Inc()
	c.TrajectoriesCreated.Add(float64(children))
}

// OperationRejected implements BuildObserver.
func (c *EngineCollector) OperationRejected(_ int, _ string, reason domain.RejectionReason) {
	c.OperationsRejected.WithLabelValues(string(reason)).Inc()
}

// BranchFailed implements BuildObserver.
func (c *EngineCollector) BranchFailed(int, string) {
	c.BranchesFailed.Inc()
}

// PeriodCompleted implements BuildObserver.
func (c *EngineCollector) PeriodCompleted(_ int, duration time.Duration) {
	c.PeriodDuration.Observe(duration.Seconds())
}
