package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// connectionStates enumerates the gauge labels kept in sync by
// RecordConnectionState.
var connectionStates = []string{"disconnected", "connecting", "connected", "reconnecting", "failed"}

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	ticksTotal   *prometheus.CounterVec
	decodeErrors *prometheus.CounterVec
	reconnects   prometheus.Counter
	connState    *prometheus.GaugeVec
	signals      *prometheus.CounterVec
	orders       *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		ticksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepull_ticks_total",
				Help: "Total number of ticks dispatched per symbol",
			},
			[]string{"symbol"},
		),
		decodeErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepull_decode_errors_total",
				Help: "Total number of discarded feed frames",
			},
			[]string{"kind"},
		),
		reconnects: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tradepull_feed_reconnects_total",
				Help: "Total number of feed reconnect attempts",
			},
		),
		connState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradepull_feed_connection_state",
				Help: "Current feed connection state (1 for the active state)",
			},
			[]string{"state"},
		),
		signals: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepull_signals_total",
				Help: "Total number of strategy signals that passed the position guard",
			},
			[]string{"symbol", "signal"},
		),
		orders: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepull_orders_total",
				Help: "Total number of dispatched orders by outcome",
			},
			[]string{"action", "status"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradepull_last_price",
				Help: "Last traded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradepull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordTick records a dispatched tick for a symbol.
func (r *Recorder) RecordTick(symbol string) {
	r.ticksTotal.WithLabelValues(symbol).Inc()
}

// RecordDecodeError records a discarded frame.
func (r *Recorder) RecordDecodeError(kind string) {
	r.decodeErrors.WithLabelValues(kind).Inc()
}

// RecordReconnect records a reconnect attempt.
func (r *Recorder) RecordReconnect() {
	r.reconnects.Inc()
}

// RecordConnectionState marks the current connection state.
func (r *Recorder) RecordConnectionState(state string) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		r.connState.WithLabelValues(s).Set(v)
	}
}

// RecordSignal records a guarded strategy signal.
func (r *Recorder) RecordSignal(symbol string, signal string) {
	r.signals.WithLabelValues(symbol, signal).Inc()
}

// RecordOrder records an order dispatch outcome.
func (r *Recorder) RecordOrder(action string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	r.orders.WithLabelValues(action, status).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
