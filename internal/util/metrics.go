package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VouchersIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vouchers_issued_total",
		Help: "Total number of vouchers minted",
	})

	IssuanceFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voucher_issuance_failed_total",
		Help: "Total number of failed issuance batches",
	}, []string{"reason"})

	OversellRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oversell_rejected_total",
		Help: "Total number of consumption attempts rejected for exceeding remaining supply",
	})

	AllocationsExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "allocations_exhausted_total",
		Help: "Total number of allocations that sold out",
	})

	ReservationsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservations_created_total",
		Help: "Total number of temporary reservations created",
	})

	ReservationsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reservations_expired_total",
		Help: "Total number of reservations expired by the sweep",
	})

	TransfersInitiatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transfers_initiated_total",
		Help: "Total number of voucher transfers initiated",
	})

	TransfersAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transfers_accepted_total",
		Help: "Total number of voucher transfers accepted",
	})

	TransfersExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transfers_expired_total",
		Help: "Total number of voucher transfers expired by the sweep",
	})

	CasesBrokenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cases_broken_total",
		Help: "Total number of case entitlements broken",
	}, []string{"reason"})

	IssuanceLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voucher_issuance_latency_seconds",
		Help:    "Latency of voucher issuance batches",
		Buckets: prometheus.DefBuckets,
	})

	SweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "expiry_sweep_runs_total",
		Help: "Total number of expiry sweep ticks executed",
	})

	SweepLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "expiry_sweep_latency_seconds",
		Help:    "Latency of one expiry sweep run",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
