// Package metrics holds the agent's Prometheus collectors, exposed on
// the /metrics route next to the WebSocket endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HubConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "capydeploy_agent_hub_connections_active", Help: "Hub WebSocket connections currently open.",
	})
	AuthorizedHubs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "capydeploy_agent_authorized_hubs", Help: "Hubs holding a valid pairing token.",
	})
	PairingOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capydeploy_agent_pairing_attempts_total", Help: "Pairing code validations by outcome.",
	}, []string{"result"})

	UploadSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "capydeploy_agent_upload_sessions_active", Help: "Upload sessions currently open.",
	})
	UploadBytesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "capydeploy_agent_upload_bytes_written_total", Help: "Total game file bytes written to disk.",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "capydeploy_agent_events_published_total", Help: "Events published by name.",
	}, []string{"event"})
)
