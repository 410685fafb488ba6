// Package metrics exports replication counters to Prometheus. It only
// observes the event bus and never touches engine state.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/matheus3301/huddle/internal/bus"
)

const namespace = "huddle"

// Metrics holds the collectors and their private registry.
type Metrics struct {
	registry *prometheus.Registry
	logger   *zap.Logger

	admitted     *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	ackFailures  prometheus.Counter
	clears       prometheus.Counter
	swept        prometheus.Counter
	openSessions prometheus.Gauge
	busDropped   prometheus.GaugeFunc

	mu     sync.Mutex
	unsub  func()
	done   chan struct{}
	server *http.Server
}

// New creates the collectors. busDrops, if set, reports bus deliveries lost
// to full subscribers.
func New(busDrops func() uint64, logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logger:   logger,
		admitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_admitted_total",
			Help:      "Messages written to the local cache, by status at admission.",
		}, []string{"status"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Inbound messages rejected before admission.",
		}, []string{"reason"}),
		ackFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_ack_failures_total",
			Help:      "Publishes that were not acknowledged in time.",
		}),
		clears: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_clears_total",
			Help:      "History clears initiated locally.",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_removed_total",
			Help:      "Invalid cached messages removed by the sweeper.",
		}),
		openSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_sessions",
			Help:      "Groups currently replicating.",
		}),
	}
	m.registry.MustRegister(m.admitted, m.dropped, m.ackFailures, m.clears, m.swept, m.openSessions)
	m.registry.MustRegister(collectors.NewGoCollector())

	if busDrops != nil {
		m.busDropped = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bus_dropped_events",
			Help:      "Bus deliveries skipped because a subscriber was full.",
		}, func() float64 { return float64(busDrops()) })
		m.registry.MustRegister(m.busDropped)
	}
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observe consumes events from b until Stop is called.
func (m *Metrics) Observe(b *bus.Bus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unsub != nil {
		return
	}
	ch, unsub := b.Subscribe("", 1024)
	m.unsub = unsub
	m.done = make(chan struct{})
	go m.consume(ch, m.done)
}

func (m *Metrics) consume(ch <-chan bus.Event, done chan struct{}) {
	for {
		select {
		case evt := <-ch:
			m.record(evt)
		case <-done:
			return
		}
	}
}

func (m *Metrics) record(evt bus.Event) {
	switch evt.Kind {
	case bus.MessageAdded:
		m.admitted.WithLabelValues(evt.Payload["status"]).Inc()
	case bus.MessageDropped:
		m.dropped.WithLabelValues(evt.Payload["reason"]).Inc()
	case bus.MessageAckFailed:
		m.ackFailures.Inc()
	case bus.HistoryClear:
		m.clears.Inc()
	case bus.SweepFinished:
		if n, err := strconv.ParseFloat(evt.Payload["removed"], 64); err == nil {
			m.swept.Add(n)
		}
	case bus.GroupOpened:
		m.openSessions.Inc()
	case bus.GroupClosed:
		m.openSessions.Dec()
	}
}

// Serve starts the /metrics listener on addr. An empty addr disables it.
func (m *Metrics) Serve(addr string) error {
	if addr == "" {
		return nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	m.mu.Lock()
	m.server = srv
	m.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", zap.Error(err))
		}
	}()
	m.logger.Info("metrics listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Stop detaches from the bus and shuts the listener down.
func (m *Metrics) Stop(ctx context.Context) error {
	m.mu.Lock()
	unsub, done, srv := m.unsub, m.done, m.server
	m.unsub, m.done, m.server = nil, nil, nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
		close(done)
	}
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}
