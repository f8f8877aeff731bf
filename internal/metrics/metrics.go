// Package metrics holds the service's prometheus collectors. All methods are
// safe on a nil *Metrics so callers and tests can run without metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"musicroom/internal/apperr"
)

type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	LockConflicts     *prometheus.CounterVec
	SequenceLength    *prometheus.HistogramVec
	RealtimeClients   prometheus.Gauge

	registry *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musicroom_operations_total",
				Help: "Player and playlist operations by outcome",
			},
			[]string{"op", "result"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "musicroom_operation_duration_seconds",
				Help:    "Time spent in player and playlist operations, lock wait included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		LockConflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musicroom_lock_conflicts_total",
				Help: "Requests rejected because a per-key lock stayed busy",
			},
			[]string{"domain"},
		),
		SequenceLength: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "musicroom_sequence_length",
				Help:    "Length of track sequences after an edit",
				Buckets: []float64{0, 10, 50, 100, 500, 1000, 5000, 10000},
			},
			[]string{"kind"},
		),
		RealtimeClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "musicroom_realtime_clients",
				Help: "Open websocket connections",
			},
		),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.OperationsTotal,
		m.OperationDuration,
		m.LockConflicts,
		m.SequenceLength,
		m.RealtimeClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe records one finished operation. The result label is "ok", the
// apperr code of err, or "error".
func (m *Metrics) Observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(op, Result(err)).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) Conflict(domain string) {
	if m == nil {
		return
	}
	m.LockConflicts.WithLabelValues(domain).Inc()
}

func (m *Metrics) SequenceSize(kind string, n int) {
	if m == nil {
		return
	}
	m.SequenceLength.WithLabelValues(kind).Observe(float64(n))
}

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.RealtimeClients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.RealtimeClients.Dec()
}

func Result(err error) string {
	if err == nil {
		return "ok"
	}
	if code := apperr.CodeOf(err); code != "" {
		return string(code)
	}
	return "error"
}
