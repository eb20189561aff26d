// Package metrics exposes Prometheus metrics for the signal engine and the
// /metrics and /healthz HTTP endpoints.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"signal-engine/internal/backtest"
	"signal-engine/internal/cache"
	"signal-engine/internal/exchange"
	"signal-engine/internal/model"
	"signal-engine/internal/notification"
	"signal-engine/internal/signals"
)

// Metrics holds every collector and implements the observer interfaces of
// the cache, exchange client, signal factory, simulator and notification job.
type Metrics struct {
	CacheLookups *prometheus.CounterVec // labels: kind, result
	StaleEntries *prometheus.CounterVec // labels: kind

	UpstreamRequests *prometheus.CounterVec   // labels: endpoint, status
	UpstreamDuration *prometheus.HistogramVec // labels: endpoint

	SignalsServed *prometheus.CounterVec // labels: strategy, decision, source
	ClosedMarket  *prometheus.CounterVec // labels: symbol

	Simulations        *prometheus.CounterVec // labels: strategy, status
	SimulationDuration prometheus.Histogram
	SimulatedPositions *prometheus.CounterVec // labels: strategy

	Notifications *prometheus.CounterVec // labels: channel, status

	RedisBuffered prometheus.Counter
	RedisFlushed  prometheus.Counter
}

var (
	_ cache.Observer           = (*Metrics)(nil)
	_ exchange.Observer        = (*Metrics)(nil)
	_ signals.Observer         = (*Metrics)(nil)
	_ backtest.Observer        = (*Metrics)(nil)
	_ notification.JobObserver = (*Metrics)(nil)
)

// NewMetrics creates the collectors and registers them with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_cache_lookups_total",
			Help: "Cache lookups by store kind and result (hit/miss)",
		}, []string{"kind", "result"}),
		StaleEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_cache_stale_total",
			Help: "Cache entries rejected because their content disagreed with their validity metadata",
		}, []string{"kind"}),

		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_upstream_requests_total",
			Help: "Market-data requests by endpoint and outcome",
		}, []string{"endpoint", "status"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signal_engine_upstream_duration_seconds",
			Help:    "Market-data request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),

		SignalsServed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_signals_total",
			Help: "Signals served by strategy, decision and source (cached/computed)",
		}, []string{"strategy", "decision", "source"}),
		ClosedMarket: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_market_closed_total",
			Help: "Signal requests answered with none because trading was closed",
		}, []string{"symbol"}),

		Simulations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_simulations_total",
			Help: "Simulation runs by strategy and outcome",
		}, []string{"strategy", "status"}),
		SimulationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signal_engine_simulation_duration_seconds",
			Help:    "Wall time of one simulation including history fetch",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		SimulatedPositions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_simulated_positions_total",
			Help: "Closed positions produced by simulations",
		}, []string{"strategy"}),

		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_engine_notifications_total",
			Help: "Notification deliveries by channel and outcome",
		}, []string{"channel", "status"}),

		RedisBuffered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_engine_redis_buffered_total",
			Help: "Signals buffered while the Redis circuit breaker was open",
		}),
		RedisFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signal_engine_redis_flushed_total",
			Help: "Buffered signals replayed after the Redis circuit breaker closed",
		}),
	}

	reg.MustRegister(
		m.CacheLookups, m.StaleEntries,
		m.UpstreamRequests, m.UpstreamDuration,
		m.SignalsServed, m.ClosedMarket,
		m.Simulations, m.SimulationDuration, m.SimulatedPositions,
		m.Notifications,
		m.RedisBuffered, m.RedisFlushed,
	)
	return m
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) CacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) CacheStale(kind string) {
	m.StaleEntries.WithLabelValues(kind).Inc()
}

func (m *Metrics) UpstreamRequest(endpoint string, elapsed time.Duration, err error) {
	m.UpstreamRequests.WithLabelValues(endpoint, status(err)).Inc()
	m.UpstreamDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (m *Metrics) SignalServed(strategy string, decision model.Decision, cached bool) {
	source := "computed"
	if cached {
		source = "cached"
	}
	m.SignalsServed.WithLabelValues(strategy, decision.String(), source).Inc()
}

func (m *Metrics) MarketClosed(symbol string) {
	m.ClosedMarket.WithLabelValues(symbol).Inc()
}

func (m *Metrics) SimulationFinished(strategy string, positions int, elapsed time.Duration, err error) {
	m.Simulations.WithLabelValues(strategy, status(err)).Inc()
	m.SimulationDuration.Observe(elapsed.Seconds())
	if err == nil {
		m.SimulatedPositions.WithLabelValues(strategy).Add(float64(positions))
	}
}

func (m *Metrics) NotificationSent(channel string, err error) {
	m.Notifications.WithLabelValues(channel, status(err)).Inc()
}

// BufferedWrite and FlushedWrites are the Redis publisher's hooks.
func (m *Metrics) BufferedWrite() { m.RedisBuffered.Inc() }

func (m *Metrics) FlushedWrites(n int) { m.RedisFlushed.Add(float64(n)) }
