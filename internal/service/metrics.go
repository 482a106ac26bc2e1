package service

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	TransactionCreations *prometheus.CounterVec
	CreationLatency      *prometheus.HistogramVec
	Transitions          *prometheus.CounterVec
	DropReplacements     *prometheus.CounterVec
}

func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		TransactionCreations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transaction_creations_total",
				Help: "Total transaction creation attempts.",
			},
			[]string{"status"},
		),
		CreationLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "transaction_creation_latency_seconds",
				Help:    "Transaction creation latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transaction_transitions_total",
				Help: "Total state transition attempts.",
			},
			[]string{"to", "status"},
		),
		DropReplacements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transaction_drop_replacements_total",
				Help: "Total drop-and-replace attempts.",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.TransactionCreations,
		m.CreationLatency,
		m.Transitions,
		m.DropReplacements,
	)
	return m
}
