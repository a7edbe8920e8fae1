package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry 專用 registry，避免與其他套件的 default registry 衝突
var Registry = prometheus.NewRegistry()

var (
	ReservationsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "parking",
		Name:      "reservations_created_total",
		Help:      "Reservations created by successful spot allocation.",
	})

	ReservationsFinalized = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "parking",
		Name:      "reservations_finalized_total",
		Help:      "Reservations finalized with a computed cost.",
	})

	AllocationConflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parking",
		Name:      "allocation_conflicts_total",
		Help:      "Spot allocation attempts that lost a race or found no free spot.",
	}, []string{"reason"})

	BilledAmount = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "parking",
		Name:      "billed_amount_total",
		Help:      "Sum of finalized reservation costs.",
	})

	CacheRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parking",
		Name:      "read_view_cache_requests_total",
		Help:      "Read-view cache lookups by view and result.",
	}, []string{"view", "result"})

	CacheInvalidations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "parking",
		Name:      "read_view_cache_invalidations_total",
		Help:      "Broad read-view invalidations triggered by lot mutations.",
	})

	ExportJobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parking",
		Name:      "export_jobs_total",
		Help:      "CSV export jobs by terminal status.",
	}, []string{"status"})

	EmailsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parking",
		Name:      "emails_total",
		Help:      "Notification emails by kind and result.",
	}, []string{"kind", "result"})

	LiveClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "parking",
		Name:      "live_clients",
		Help:      "Connected occupancy websocket clients.",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ReservationsCreated,
		ReservationsFinalized,
		AllocationConflicts,
		BilledAmount,
		CacheRequests,
		CacheInvalidations,
		ExportJobs,
		EmailsSent,
		LiveClients,
	)
}

// Handler 提供 /metrics 端點
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
