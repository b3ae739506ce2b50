/*
metrics.go - Prometheus counters for the consumption API
*/
package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	consumptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_consumptions_total",
		Help: "Consumptions recorded, by tenant.",
	}, []string{"tenant"})

	reversalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reversals_total",
		Help: "Consumption reversals, by tenant and reason.",
	}, []string{"tenant", "reason"})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_status_transitions_total",
		Help: "Manual status transitions applied, by entity kind.",
	}, []string{"kind"})

	conflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_write_conflicts_total",
		Help: "Writes lost to optimistic-concurrency conflicts.",
	})
)
