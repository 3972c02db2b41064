package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	admissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "admission",
		Name:      "admissions_total",
		Help:      "Order admission attempts by outcome.",
	}, []string{"outcome"})

	numberRegenerations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "admission",
		Name:      "number_regenerations_total",
		Help:      "Order number collisions that forced regeneration.",
	})

	mirrorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "admission",
		Name:      "mirror_failures_total",
		Help:      "Dual-write mirror writes that failed after the authoritative commit.",
	})

	publishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "admission",
		Name:      "publish_failures_total",
		Help:      "Admitted-order feed publishes that failed.",
	})
)
