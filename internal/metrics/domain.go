package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DNSLookups counts analysis lookups by record kind and outcome (resolved, unresolved, errored).
	DNSLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dns_lookups_total",
		Help: "Total number of DNS analysis lookups",
	}, []string{"kind", "outcome"})

	// PropagationChecks counts propagation checks by result (propagated, partial, error).
	PropagationChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propagation_checks_total",
		Help: "Total number of DNS propagation checks",
	}, []string{"result"})

	// MonitorDomainsProcessed counts domains visited by the daily monitors.
	MonitorDomainsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_domains_processed_total",
		Help: "Total number of domains processed by the SSL and expiry monitors",
	}, []string{"job", "outcome"})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Total number of transactional emails attempted",
	}, []string{"kind", "outcome"})

	// RouteCacheOperations tracks L1/L2 routing cache hits and misses.
	RouteCacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "route_cache_operations_total",
		Help: "Total number of hostname routing cache lookups",
	}, []string{"level", "result"})

	ExternalCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "external_call_duration_seconds",
		Help:    "Duration of calls to hosting, registrar, CDN and RDAP services",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "operation"})
)
