package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicdesk_store_mutations_total",
			Help: "Total number of successful collection mutations",
		},
		[]string{"collection", "op"},
	)

	persistFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicdesk_store_persist_failures_total",
			Help: "Total number of failed writes to the durable medium",
		},
		[]string{"collection"},
	)
)
