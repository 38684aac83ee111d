package visit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clinicdesk_visit_transitions_total",
			Help: "Total number of appointment status transitions",
		},
		[]string{"from_status", "to_status"},
	)

	waitingGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clinicdesk_queue_waiting",
			Help: "Number of patients currently waiting in the queue",
		},
	)
)
