package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "remindr_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	ScanTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "remindr_scan_ticks_total", Help: "Scanner ticks"},
		[]string{"result"},
	)
	ScanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "remindr_scan_duration_seconds", Help: "Scanner tick duration"},
	)
	ScanCandidates = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "remindr_scan_candidates_total", Help: "Due candidates by outcome"},
		[]string{"outcome"},
	)
	MissedOccurrences = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "remindr_missed_occurrences_total", Help: "Occurrences found older than the scan window"},
	)
	LedgerClaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "remindr_ledger_claims_total", Help: "Idempotency ledger claim results"},
		[]string{"result"},
	)
	QuotaDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "remindr_quota_decisions_total", Help: "Quota guard decisions"},
		[]string{"result"},
	)
	CarrierSend = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "remindr_carrier_send_total", Help: "Carrier send outcomes"},
		[]string{"result"},
	)
	CarrierLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "remindr_carrier_send_latency_seconds", Help: "Carrier send latency"},
	)
	Classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "remindr_classifications_total", Help: "Inbound reply verdicts"},
		[]string{"polarity", "action"},
	)
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "remindr_webhook_events_total", Help: "Carrier webhook events"},
		[]string{"kind", "status"},
	)
	Enqueues = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "remindr_enqueue_total", Help: "SQS enqueue results"},
		[]string{"result"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, ScanTicks, ScanDuration, ScanCandidates, MissedOccurrences, LedgerClaims,
		QuotaDecisions, CarrierSend, CarrierLatency, Classifications, WebhookEvents, Enqueues)
}
