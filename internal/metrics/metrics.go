// ABOUTME: Prometheus instrumentation for the mixing engine and transport
// ABOUTME: All collectors live on a private registry served at /metrics
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "confbridge"

// Bridge groups the collectors updated by the engine, delivery loops and
// server. A nil *Bridge is valid and records nothing.
type Bridge struct {
	registry *prometheus.Registry

	Channels           prometheus.Gauge
	Connections        prometheus.Gauge
	Ticks              prometheus.Counter
	TickDuration       prometheus.Histogram
	InboundBytes       prometheus.Counter
	InboundDropped     prometheus.Counter
	OutboundOverwrites prometheus.Counter
	DeliveredBytes     prometheus.Counter
	DeliveryFailures   prometheus.Counter
	ChannelPanics      prometheus.Counter
	RelayedMessages    *prometheus.CounterVec
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Bridge {
	m := &Bridge{
		registry: prometheus.NewRegistry(),
		Channels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "channels",
			Help: "Channels currently registered with the mixing engine.",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "connections",
			Help: "Open WebSocket connections, master included.",
		}),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "mix_ticks_total",
			Help: "Mix ticks that processed at least one channel.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "mix_tick_duration_seconds",
			Help:    "Wall time spent in one mix tick.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
		}),
		InboundBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "inbound_bytes_total",
			Help: "Compressed audio bytes accepted into inbound rings.",
		}),
		InboundDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "inbound_dropped_bytes_total",
			Help: "Compressed audio bytes shed because an inbound ring was full.",
		}),
		OutboundOverwrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "outbound_overwritten_bytes_total",
			Help: "Unsent mixed bytes overwritten by newer frames.",
		}),
		DeliveredBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "delivered_bytes_total",
			Help: "Mixed audio bytes handed to the transport.",
		}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "delivery_failures_total",
			Help: "Delivery loops terminated by a transport send error.",
		}),
		ChannelPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "channel_panics_total",
			Help: "Channels skipped within a tick after a recovered panic.",
		}),
		RelayedMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "relayed_messages_total",
			Help: "Signaling messages relayed between master and clients.",
		}, []string{"direction", "kind"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Channels, m.Connections, m.Ticks, m.TickDuration,
		m.InboundBytes, m.InboundDropped, m.OutboundOverwrites,
		m.DeliveredBytes, m.DeliveryFailures, m.ChannelPanics,
		m.RelayedMessages,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Bridge) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Bridge) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveTick records one completed tick.
func (m *Bridge) ObserveTick(d time.Duration) {
	if m == nil {
		return
	}
	m.Ticks.Inc()
	m.TickDuration.Observe(d.Seconds())
}

// SetChannels records the registry size.
func (m *Bridge) SetChannels(n int) {
	if m == nil {
		return
	}
	m.Channels.Set(float64(n))
}

// AddConnections adjusts the open connection gauge.
func (m *Bridge) AddConnections(delta int) {
	if m == nil {
		return
	}
	m.Connections.Add(float64(delta))
}

// Inbound records bytes accepted and shed by one submit.
func (m *Bridge) Inbound(accepted, dropped int) {
	if m == nil {
		return
	}
	m.InboundBytes.Add(float64(accepted))
	if dropped > 0 {
		m.InboundDropped.Add(float64(dropped))
	}
}

// Overwritten records outbound bytes lost to overwrite-oldest.
func (m *Bridge) Overwritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OutboundOverwrites.Add(float64(n))
}

// Delivered records bytes handed to a transport.
func (m *Bridge) Delivered(n int) {
	if m == nil {
		return
	}
	m.DeliveredBytes.Add(float64(n))
}

// DeliveryFailed records a delivery loop ending on a send error.
func (m *Bridge) DeliveryFailed() {
	if m == nil {
		return
	}
	m.DeliveryFailures.Inc()
}

// ChannelPanicked records a recovered per-channel panic.
func (m *Bridge) ChannelPanicked() {
	if m == nil {
		return
	}
	m.ChannelPanics.Inc()
}

// Relayed records one relayed signaling message.
func (m *Bridge) Relayed(direction, kind string) {
	if m == nil {
		return
	}
	m.RelayedMessages.WithLabelValues(direction, kind).Inc()
}
