package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cropline_cycles_created_total",
		Help: "Crop cycles planned since process start.",
	})
	cycleTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cropline_cycle_transitions_total",
		Help: "Committed crop cycle status transitions by target status.",
	}, []string{"to"})
	activitiesRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cropline_activities_recorded_total",
		Help: "Activity log rows recorded since process start.",
	})
)
