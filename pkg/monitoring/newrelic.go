package monitoring

import (
	"fmt"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// Config holds New Relic configuration
type Config struct {
	LicenseKey string
	AppName    string
	Enabled    bool
}

// NewRelicApp wraps the New Relic application. A disabled app accepts every
// call and records nothing.
type NewRelicApp struct {
	*newrelic.Application
	enabled bool
}

// New creates a new New Relic application
func New(cfg Config) (*NewRelicApp, error) {
	if !cfg.Enabled || cfg.LicenseKey == "" {
		return &NewRelicApp{nil, false}, nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigAppLogForwardingEnabled(true),
		newrelic.ConfigDistributedTracerEnabled(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create New Relic application: %w", err)
	}

	return &NewRelicApp{app, true}, nil
}

// Disabled returns an app that records nothing
func Disabled() *NewRelicApp {
	return &NewRelicApp{nil, false}
}

// RecordCustomEvent records a custom event
func (nr *NewRelicApp) RecordCustomEvent(eventType string, params map[string]interface{}) {
	if !nr.IsEnabled() {
		return
	}
	nr.Application.RecordCustomEvent(eventType, params)
}

// RecordCustomMetric records a custom metric
func (nr *NewRelicApp) RecordCustomMetric(name string, value float64) {
	if !nr.IsEnabled() {
		return
	}
	nr.Application.RecordCustomMetric(name, value)
}

// Shutdown flushes pending data and shuts the agent down
func (nr *NewRelicApp) Shutdown(timeout time.Duration) {
	if !nr.IsEnabled() {
		return
	}
	nr.Application.Shutdown(timeout)
}

// RecordSessionStatus records a realtime session status change
func (nr *NewRelicApp) RecordSessionStatus(status string) {
	nr.RecordCustomEvent("RealtimeSession", map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Unix(),
	})
}

// RecordReconnectAttempt records one failed connection attempt
func (nr *NewRelicApp) RecordReconnectAttempt() {
	nr.RecordCustomMetric("custom/realtime/connect_errors", 1)
}

// RecordOfferOutcome records how a ride offer ended
func (nr *NewRelicApp) RecordOfferOutcome(outcome string) {
	nr.RecordCustomEvent("RideOffer", map[string]interface{}{
		"outcome":   outcome,
		"timestamp": time.Now().Unix(),
	})
}

// RecordRideTransition records a ride status change
func (nr *NewRelicApp) RecordRideTransition(status string) {
	nr.RecordCustomEvent("RideTransition", map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Unix(),
	})
}

// RecordChatMessage records a chat message in the given direction
func (nr *NewRelicApp) RecordChatMessage(direction string) {
	nr.RecordCustomMetric(fmt.Sprintf("custom/chat/messages_%s", direction), 1)
}

// IsEnabled returns whether New Relic is enabled
func (nr *NewRelicApp) IsEnabled() bool {
	return nr != nil && nr.enabled && nr.Application != nil
}
