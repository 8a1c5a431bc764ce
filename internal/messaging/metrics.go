// internal/messaging/metrics.go

package messaging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_messages_sent_total",
			Help: "Total number of messages persisted",
		},
		[]string{"type"},
	)

	conversationsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "messaging_conversations_created_total",
			Help: "Total number of conversations created",
		},
	)

	bulkRecipients = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_bulk_recipients_total",
			Help: "Per-recipient outcomes of bulk sends",
		},
		[]string{"status"},
	)

	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "messaging_ws_active_connections",
			Help: "Currently connected websocket clients",
		},
	)

	realtimeEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_realtime_events_total",
			Help: "Events published on the realtime channel",
		},
		[]string{"event"},
	)
)
