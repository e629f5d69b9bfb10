package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// InputPacketsTotal counts DMX input packets accepted, by protocol.
	InputPacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmxx_input_packets_total",
			Help: "Total DMX input packets accepted by protocol",
		},
		[]string{"protocol"},
	)

	// InputPacketsDropped counts input packets rejected before merge.
	InputPacketsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmxx_input_packets_dropped_total",
			Help: "Total DMX input packets rejected by protocol and reason",
		},
		[]string{"protocol", "reason"},
	)

	// OutputFramesTotal counts DMX frames transmitted, by protocol.
	OutputFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmxx_output_frames_total",
			Help: "Total DMX frames transmitted by protocol",
		},
		[]string{"protocol"},
	)

	// OutputErrorsTotal counts send failures, by protocol.
	OutputErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmxx_output_errors_total",
			Help: "Total DMX send failures by protocol",
		},
		[]string{"protocol"},
	)

	// TickOverruns counts engine ticks that exceeded the frame interval.
	TickOverruns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dmxx_tick_overruns_total",
			Help: "Engine ticks whose processing exceeded the frame interval",
		},
	)

	// FrameRate is the effective engine tick rate.
	FrameRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dmxx_frame_rate_hz",
			Help: "Effective engine tick rate in Hz",
		},
	)

	// ConnectedClients is the current WebSocket client count.
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dmxx_connected_clients",
			Help: "Currently connected WebSocket clients",
		},
	)

	// ClientsDropped counts clients disconnected for slow consumption.
	ClientsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dmxx_clients_dropped_total",
			Help: "WebSocket clients disconnected because their send queue overflowed",
		},
	)

	// CommandsTotal counts processed engine commands by type.
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dmxx_commands_total",
			Help: "Total engine commands processed by type",
		},
		[]string{"command"},
	)
)
