package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SessionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledgerdesk_session_state",
			Help: "Current state of the ledger session (0 disconnected .. 5 closed)",
		},
	)
	ReconnectsCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerdesk_reconnects_count",
			Help: "Total number of reconnection attempts per endpoint",
		},
		[]string{"endpoint"},
	)
	RequestsCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerdesk_requests_count",
			Help: "Total number of requests sent by kind",
		},
		[]string{"kind"},
	)
	ResponsesCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerdesk_responses_count",
			Help: "Total number of responses received by kind and status",
		},
		[]string{"kind", "status"},
	)
	PendingRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledgerdesk_pending_requests",
			Help: "Number of requests awaiting a response",
		},
	)
	SubmitResultsCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerdesk_submit_results_count",
			Help: "Total number of submitted transactions by engine result",
		},
		[]string{"engine_result"},
	)
	LedgerIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledgerdesk_ledger_index",
			Help: "Index of the latest closed ledger",
		},
	)
	ErrorsCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerdesk_error_count",
			Help: "Total number of various kinds of errors",
		},
		[]string{"error_type"},
	)
)

func init() {
	prometheus.MustRegister(SessionState)
	prometheus.MustRegister(ReconnectsCount)
	prometheus.MustRegister(RequestsCount)
	prometheus.MustRegister(ResponsesCount)
	prometheus.MustRegister(PendingRequests)
	prometheus.MustRegister(SubmitResultsCount)
	prometheus.MustRegister(LedgerIndex)
	prometheus.MustRegister(ErrorsCount)
}
