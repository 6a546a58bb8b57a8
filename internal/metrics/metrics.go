// Package metrics exposes settlement and API metrics for Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/wagerbook/internal/units"
)

// SettlementMetrics implements the service Recorder on its own registry.
// Amounts are exported in display units of the configured asset.
type SettlementMetrics struct {
	registry *prometheus.Registry
	decimals int32

	WagersTotal        *prometheus.CounterVec
	WagerVolume        *prometheus.CounterVec
	FeesAccrued        prometheus.Counter
	FeesCollectedTotal prometheus.Counter
	Resolutions        *prometheus.CounterVec
	ClaimsTotal        prometheus.Counter
	ClaimsPaid         prometheus.Counter
	OperationErrors    *prometheus.CounterVec
	OperationTime      *prometheus.HistogramVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New creates SettlementMetrics with Go and process collectors registered.
func New(decimals int32) *SettlementMetrics {
	m := &SettlementMetrics{
		registry: prometheus.NewRegistry(),
		decimals: decimals,

		WagersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wagerbook_wagers_total",
			Help: "Wagers accepted, by side.",
		}, []string{"side"}),
		WagerVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wagerbook_wager_volume",
			Help: "Staked amount accepted, by side.",
		}, []string{"side"}),
		FeesAccrued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wagerbook_fees_accrued",
			Help: "Fees charged on wagers.",
		}),
		FeesCollectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wagerbook_fees_collected",
			Help: "Fees withdrawn by market authorities.",
		}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wagerbook_markets_resolved_total",
			Help: "Markets resolved, by outcome.",
		}, []string{"outcome"}),
		ClaimsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wagerbook_claims_total",
			Help: "Successful winnings claims.",
		}),
		ClaimsPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wagerbook_claims_paid",
			Help: "Winnings paid out.",
		}),
		OperationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wagerbook_operation_errors_total",
			Help: "Rejected or failed settlement operations, by error code.",
		}, []string{"operation", "code"}),
		OperationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wagerbook_operation_duration_seconds",
			Help:    "Settlement operation latency including lock wait.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation"}),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wagerbook_http_requests_total",
			Help: "API requests, by method and status.",
		}, []string{"method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wagerbook_http_request_duration_seconds",
			Help:    "API request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.WagersTotal, m.WagerVolume, m.FeesAccrued, m.FeesCollectedTotal,
		m.Resolutions, m.ClaimsTotal, m.ClaimsPaid,
		m.OperationErrors, m.OperationTime,
		m.HTTPRequests, m.HTTPDuration,
	)
	return m
}

// Registry returns the registry backing the metrics.
func (m *SettlementMetrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *SettlementMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *SettlementMetrics) amount(base uint64) float64 {
	return units.Decimal(base, m.decimals).InexactFloat64()
}

func (m *SettlementMetrics) WagerPlaced(side string, amount, fee uint64) {
	m.WagersTotal.WithLabelValues(side).Inc()
	m.WagerVolume.WithLabelValues(side).Add(m.amount(amount))
	m.FeesAccrued.Add(m.amount(fee))
}

func (m *SettlementMetrics) MarketResolved(outcome string) {
	m.Resolutions.WithLabelValues(outcome).Inc()
}

func (m *SettlementMetrics) WinningsClaimed(amount uint64) {
	m.ClaimsTotal.Inc()
	m.ClaimsPaid.Add(m.amount(amount))
}

func (m *SettlementMetrics) FeesCollected(amount uint64) {
	m.FeesCollectedTotal.Add(m.amount(amount))
}

func (m *SettlementMetrics) OperationFailed(op, code string) {
	m.OperationErrors.WithLabelValues(op, code).Inc()
}

func (m *SettlementMetrics) ObserveOperation(op string, d time.Duration) {
	m.OperationTime.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveHTTP records one API request.
func (m *SettlementMetrics) ObserveHTTP(method string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method).Observe(d.Seconds())
}
