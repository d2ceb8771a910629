package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionState 1 for the current state label, 0 for the others
	ConnectionState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chat_client_connection_state",
		Help: "Current websocket connection state",
	}, []string{"state"})

	EventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_client_events_received_total",
		Help: "Inbound websocket events by name",
	}, []string{"event"})

	EventsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_client_events_sent_total",
		Help: "Outbound websocket events by name",
	}, []string{"event"})

	DroppedFrames = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_client_dropped_frames_total",
		Help: "Malformed inbound frames",
	})

	HandlerPanics = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_client_handler_panics_total",
		Help: "Recovered panics in event handlers",
	})

	ReconnectAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_client_reconnect_attempts_total",
		Help: "Reconnect dial attempts",
	})

	UploadTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_client_upload_timeouts_total",
		Help: "File uploads that got no response in time",
	})

	once sync.Once
)

// Init register collectors on the default registry, safe to call more than once
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			ConnectionState,
			EventsReceived,
			EventsSent,
			DroppedFrames,
			HandlerPanics,
			ReconnectAttempts,
			UploadTimeouts,
		)
	})
}

// SetState mark state as the only active connection state
func SetState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		ConnectionState.WithLabelValues(s).Set(v)
	}
}

// Handler returns an http.Handler for Prometheus scraping
func Handler() http.Handler {
	return promhttp.Handler()
}
