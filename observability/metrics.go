package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// EscrowMetrics records engine activity for the scrape endpoint. All methods
// are nil-safe so engines can run without metrics wired.
type EscrowMetrics struct {
	listings    *prometheus.CounterVec
	resolutions *prometheus.CounterVec
	disputes    prometheus.Counter
	votes       prometheus.Counter
}

var (
	escrowMetricsOnce sync.Once
	escrowRegistry    *EscrowMetrics
)

// Escrow returns the lazily-initialised escrow metrics registry, registering
// the collectors with the default Prometheus registerer on first use.
func Escrow() *EscrowMetrics {
	escrowMetricsOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			listings: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "debazaar",
				Subsystem: "escrow",
				Name:      "listings_created_total",
				Help:      "Total listings created segmented by escrow type.",
			}, []string{"escrow_type"}),
			resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "debazaar",
				Subsystem: "escrow",
				Name:      "resolutions_total",
				Help:      "Total terminal resolutions segmented by outcome.",
			}, []string{"outcome"}),
			disputes: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "debazaar",
				Subsystem: "escrow",
				Name:      "disputes_opened_total",
				Help:      "Total listings escalated into arbitration.",
			}),
			votes: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "debazaar",
				Subsystem: "arbitration",
				Name:      "votes_cast_total",
				Help:      "Total committee votes recorded.",
			}),
		}
		prometheus.MustRegister(
			escrowRegistry.listings,
			escrowRegistry.resolutions,
			escrowRegistry.disputes,
			escrowRegistry.votes,
		)
	})
	return escrowRegistry
}

// RecordListingCreated increments the creation counter for the escrow type.
func (m *EscrowMetrics) RecordListingCreated(escrowType string) {
	if m == nil {
		return
	}
	m.listings.WithLabelValues(escrowType).Inc()
}

// RecordResolution increments the resolution counter for the outcome.
func (m *EscrowMetrics) RecordResolution(outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
}

// RecordDisputeOpened increments the dispute counter.
func (m *EscrowMetrics) RecordDisputeOpened() {
	if m == nil {
		return
	}
	m.disputes.Inc()
}

// RecordVoteCast increments the committee vote counter.
func (m *EscrowMetrics) RecordVoteCast() {
	if m == nil {
		return
	}
	m.votes.Inc()
}
