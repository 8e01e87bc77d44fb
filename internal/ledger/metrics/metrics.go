package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the token ledger. All methods are
// nil-safe so tests can pass a nil *Metrics and skip registration.
type Metrics struct {
	Mints       prometheus.Counter
	Transfers   prometheus.Counter
	Rejections  *prometheus.CounterVec
	TotalIssued prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		Mints: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nymreg_ledger_mints_total",
			Help: "Total number of completed mint operations",
		}),
		Transfers: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nymreg_ledger_transfers_total",
			Help: "Total number of completed transfer operations",
		}),
		Rejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "nymreg_ledger_rejections_total",
			Help: "Rejected ledger operations by operation and reason",
		}, []string{"operation", "reason"}),
		TotalIssued: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "nymreg_ledger_total_issued",
			Help: "Running total of issued units",
		}),
	}
}

func (m *Metrics) IncrementMints() {
	if m != nil {
		m.Mints.Inc()
	}
}

func (m *Metrics) IncrementTransfers() {
	if m != nil {
		m.Transfers.Inc()
	}
}

func (m *Metrics) IncrementRejection(operation, reason string) {
	if m != nil {
		m.Rejections.WithLabelValues(operation, reason).Inc()
	}
}

func (m *Metrics) SetTotalIssued(total uint64) {
	if m != nil {
		m.TotalIssued.Set(float64(total))
	}
}
