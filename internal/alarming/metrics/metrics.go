package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the alarm and SLA pipelines, exported on /metrics.
var (
	AlarmsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faultline_alarms_created_total",
		Help: "New alarms created, by tenant and severity.",
	}, []string{"tenant", "severity"})

	AlarmsDeduplicated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faultline_alarms_deduplicated_total",
		Help: "Occurrences folded into an existing open alarm.",
	}, []string{"tenant"})

	AlarmsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faultline_alarms_suppressed_total",
		Help: "Alarms suppressed by rule or maintenance window.",
	}, []string{"tenant", "reason"})

	AlarmsCorrelated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faultline_alarms_correlated_total",
		Help: "Alarms that joined or started a correlation group.",
	}, []string{"tenant", "kind"})

	BreachesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faultline_sla_breaches_detected_total",
		Help: "New SLA breach records created.",
	}, []string{"tenant", "breach_type"})

	ComplianceCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faultline_compliance_cache_hits_total",
		Help: "Compliance timeseries served from cache.",
	})

	ComplianceCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "faultline_compliance_cache_misses_total",
		Help: "Compliance timeseries computed from the store.",
	})
)
