// Package observability provides Prometheus metrics for tree operations.
//
// Metrics are registered on a caller-supplied registry so tests and the
// CLI can build isolated instances. A nil *TreeMetrics is valid and records
// nothing.
package observability

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"nodetree/internal/domain"
)

const (
	metricsNamespace = "nodetree"
	treeSubsystem    = "tree"
)

// Operation names used as the "operation" label
const (
	OpAddNode        = "add_node"
	OpGetNode        = "get_node"
	OpGetRoot        = "get_root"
	OpGetDescendants = "get_descendants"
	OpSetParent      = "set_parent"
	OpVerify         = "verify"
)

// Outcome label values
const (
	OutcomeOK               = "ok"
	OutcomeNotFound         = "not_found"
	OutcomeDuplicateRoot    = "duplicate_root"
	OutcomeInvalidArgument  = "invalid_argument"
	OutcomeInvalidStructure = "invalid_structure"
	OutcomeError            = "error"
)

// TreeMetrics holds the collectors for tree service operations.
type TreeMetrics struct {
	// OperationsTotal counts operations.
	// Labels: operation, outcome
	OperationsTotal *prometheus.CounterVec

	// OperationDurationSeconds measures operation latency.
	// Labels: operation
	OperationDurationSeconds *prometheus.HistogramVec

	// CycleCheckNodes records how many descendants a reparent had to scan.
	CycleCheckNodes prometheus.Histogram
}

// NewTreeMetrics creates the tree metrics and registers them on reg.
// Panics if reg already holds them.
func NewTreeMetrics(reg prometheus.Registerer) *TreeMetrics {
	factory := promauto.With(reg)

	return &TreeMetrics{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: treeSubsystem,
				Name:      "operations_total",
				Help:      "Total tree operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),

		OperationDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: treeSubsystem,
				Name:      "operation_duration_seconds",
				Help:      "Tree operation latency in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"operation"},
		),

		CycleCheckNodes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: treeSubsystem,
				Name:      "cycle_check_nodes",
				Help:      "Descendants scanned by the reparent cycle check",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
	}
}

// ObserveOperation records one finished operation that started at start.
func (m *TreeMetrics) ObserveOperation(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(op, Outcome(err)).Inc()
	m.OperationDurationSeconds.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// ObserveCycleCheck records the size of a reparent's descendant scan.
func (m *TreeMetrics) ObserveCycleCheck(scanned int) {
	if m == nil {
		return
	}
	m.CycleCheckNodes.Observe(float64(scanned))
}

// Outcome classifies err into an outcome label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, domain.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, domain.ErrDuplicateRoot):
		return OutcomeDuplicateRoot
	case errors.Is(err, domain.ErrInvalidArgument):
		return OutcomeInvalidArgument
	case errors.Is(err, domain.ErrInvalidStructure):
		return OutcomeInvalidStructure
	default:
		return OutcomeError
	}
}
