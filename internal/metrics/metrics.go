package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "civic_http_request_duration_ms",
		Help:    "HTTP request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"route", "status"})
	IssuesCreatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "civic_issues_created_total",
		Help: "Total issues created, by municipality code",
	}, []string{"municipality"})
	SupportTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "civic_support_total",
		Help: "Support operations by action and outcome",
	}, []string{"action", "result"})
	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "civic_notifications_total",
		Help: "E-mail notifications by kind and result",
	}, []string{"kind", "result"})
	MunicipalityResolveTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "civic_municipality_resolve_total",
		Help: "Municipality routing lookups by result (hit/miss)",
	}, []string{"result"})
	NearbyQueriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "civic_nearby_queries_total",
		Help: "Total nearby-issue queries",
	})
	RelayRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "civic_relay_requests_total",
		Help: "Workflow relay requests by result",
	}, []string{"result"})
	RelayDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "civic_relay_duration_ms",
		Help:    "Workflow relay call duration in milliseconds",
		Buckets: []float64{5, 10, 20, 50, 100, 200, 500, 1000, 5000},
	})
	RateLimitedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "civic_rate_limited_total",
		Help: "Requests rejected by a limiter",
	}, []string{"limiter"})
	RemindersSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "civic_reminders_sent_total",
		Help: "Reminder notifications sent and recorded",
	})
)

func init() {
	prometheus.MustRegister(RequestDurationMs)
	prometheus.MustRegister(IssuesCreatedTotal)
	prometheus.MustRegister(SupportTotal)
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(MunicipalityResolveTotal)
	prometheus.MustRegister(NearbyQueriesTotal)
	prometheus.MustRegister(RelayRequestsTotal)
	prometheus.MustRegister(RelayDurationMs)
	prometheus.MustRegister(RateLimitedTotal)
	prometheus.MustRegister(RemindersSentTotal)
}

// Handler exposes the registered metrics for scraping.
func Handler() http.Handler { return promhttp.Handler() }
