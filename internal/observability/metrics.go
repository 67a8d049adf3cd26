// Package observability records the lifecycle of the realtime core as
// Prometheus metrics and New Relic custom events.
package observability

import (
	"github.com/gocomet/ride-realtime/pkg/monitoring"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ride_realtime"

// Offer outcomes
const (
	OfferReceived   = "received"
	OfferAccepted   = "accepted"
	OfferDeclined   = "declined"
	OfferExpired    = "expired"
	OfferSuperseded = "superseded"
	OfferInvalid    = "invalid"
)

var (
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "frames_total", Help: "Inbound frames by event name"},
		[]string{"event"},
	)
	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "frames_dropped_total", Help: "Inbound frames dropped by reason"},
		[]string{"event", "reason"},
	)
	ConnectErrors = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "connect_errors_total", Help: "Failed connection attempts"},
	)
	SessionConnected = promauto.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "session_connected", Help: "1 while the realtime channel is connected"},
	)
	OffersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "offers_total", Help: "Ride offers by outcome"},
		[]string{"outcome"},
	)
	RideTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ride_transitions_total", Help: "Ride status transitions"},
		[]string{"status"},
	)
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "chat_messages_total", Help: "Chat messages by direction"},
		[]string{"direction"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Render bridge requests"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Render bridge request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Recorder receives lifecycle signals from the realtime services
type Recorder interface {
	FrameReceived(event string)
	FrameDropped(event, reason string)
	SessionStatus(status string)
	ConnectError()
	OfferOutcome(outcome string)
	RideTransition(status string)
	MessageSent()
	MessageReceived()
}

// Nop discards every signal
type Nop struct{}

func (Nop) FrameReceived(string)        {}
func (Nop) FrameDropped(string, string) {}
func (Nop) SessionStatus(string)        {}
func (Nop) ConnectError()               {}
func (Nop) OfferOutcome(string)         {}
func (Nop) RideTransition(string)       {}
func (Nop) MessageSent()                {}
func (Nop) MessageReceived()            {}

// Telemetry is the production Recorder
type Telemetry struct {
	nr *monitoring.NewRelicApp
}

// NewTelemetry creates a Recorder writing to Prometheus and, when enabled, New Relic
func NewTelemetry(nr *monitoring.NewRelicApp) *Telemetry {
	if nr == nil {
		nr = monitoring.Disabled()
	}
	return &Telemetry{nr: nr}
}

// FrameReceived implements Recorder
func (t *Telemetry) FrameReceived(event string) {
	FramesTotal.WithLabelValues(event).Inc()
}

// FrameDropped implements Recorder
func (t *Telemetry) FrameDropped(event, reason string) {
	FramesDropped.WithLabelValues(event, reason).Inc()
}

// SessionStatus implements Recorder
func (t *Telemetry) SessionStatus(status string) {
	if status == "connected" {
		SessionConnected.Set(1)
	} else {
		SessionConnected.Set(0)
	}
	t.nr.RecordSessionStatus(status)
}

// ConnectError implements Recorder
func (t *Telemetry) ConnectError() {
	ConnectErrors.Inc()
	t.nr.RecordReconnectAttempt()
}

// OfferOutcome implements Recorder
func (t *Telemetry) OfferOutcome(outcome string) {
	OffersTotal.WithLabelValues(outcome).Inc()
	t.nr.RecordOfferOutcome(outcome)
}

// RideTransition implements Recorder
func (t *Telemetry) RideTransition(status string) {
	RideTransitions.WithLabelValues(status).Inc()
	t.nr.RecordRideTransition(status)
}

// MessageSent implements Recorder
func (t *Telemetry) MessageSent() {
	MessagesTotal.WithLabelValues("sent").Inc()
	t.nr.RecordChatMessage("sent")
}

// MessageReceived implements Recorder
func (t *Telemetry) MessageReceived() {
	MessagesTotal.WithLabelValues("received").Inc()
	t.nr.RecordChatMessage("received")
}
