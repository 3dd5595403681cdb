// Package metrics exposes the ingestion pipeline's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 服务指标集合
type Metrics struct {
	ActiveConnections *prometheus.GaugeVec
	PositionsDecoded  *prometheus.CounterVec
	FrameErrors       *prometheus.CounterVec
	EventsGenerated   *prometheus.CounterVec
	NotificationSends *prometheus.CounterVec
}

// New 创建并注册指标
func New(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fleettrack",
			Name:      "active_connections",
			Help:      "Currently open tracker connections per protocol.",
		}, []string{"protocol"}),
		PositionsDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleettrack",
			Name:      "positions_decoded_total",
			Help:      "Positions decoded per protocol.",
		}, []string{"protocol"}),
		FrameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleettrack",
			Name:      "frame_errors_total",
			Help:      "Frame decode errors per protocol and kind.",
		}, []string{"protocol", "kind"}),
		EventsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleettrack",
			Name:      "events_generated_total",
			Help:      "Events generated per type.",
		}, []string{"type"}),
		NotificationSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fleettrack",
			Name:      "notification_sends_total",
			Help:      "Notification send attempts per channel and result.",
		}, []string{"channel", "result"}),
	}

	registry.MustRegister(
		m.ActiveConnections,
		m.PositionsDecoded,
		m.FrameErrors,
		m.EventsGenerated,
		m.NotificationSends,
	)
	return m
}
