package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsProcessed tracks mention events by outcome reason
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blessbot_events_processed_total",
			Help: "Total number of mention events processed",
		},
		[]string{"reason"},
	)

	// TransfersTotal tracks token transfers by outcome
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blessbot_transfers_total",
			Help: "Total number of token transfers attempted",
		},
		[]string{"outcome"},
	)

	// TransferLatency tracks time from signing to confirmation
	TransferLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blessbot_transfer_latency_seconds",
			Help:    "Token transfer latency in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 40, 80, 160, 320},
		},
	)

	// FunderNonce tracks the next nonce the pipeline will use
	FunderNonce = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blessbot_funder_nonce",
			Help: "Next nonce of the funder account",
		},
	)

	// FunderBalance tracks the funder token balance in whole tokens
	FunderBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blessbot_funder_token_balance",
			Help: "Token balance of the funder account",
		},
	)

	// MentionCursor tracks the last processed mention id
	MentionCursor = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blessbot_mention_cursor",
			Help: "Highest mention id processed",
		},
	)

	// CyclesTotal tracks polling cycles by result
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blessbot_cycles_total",
			Help: "Total number of polling cycles",
		},
		[]string{"result"},
	)

	// RepliesFailed counts replies that could not be posted
	RepliesFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blessbot_replies_failed_total",
			Help: "Total number of replies that failed to post",
		},
	)

	// DBConnectionPoolUsage tracks database connection pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blessbot_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
