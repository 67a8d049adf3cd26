// Package notify carries the user-visible side effects of the realtime core:
// notifications and navigation requests for the rendering layer.
package notify

import (
	"sync"
	"time"

	"github.com/gocomet/ride-realtime/pkg/errors"
	"github.com/gocomet/ride-realtime/pkg/logger"
	"github.com/google/uuid"
)

// Level is the severity of a notification
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Codes of notifications raised by the core
const (
	CodeRideOffer       = "ride_offer"
	CodeAttention       = "attention"
	CodeInvalidOffer    = "invalid_offer"
	CodeAcceptFailed    = "accept_failed"
	CodeDriverAssigned  = "driver_assigned"
	CodeNoDrivers       = "no_drivers"
	CodeRideCanceled    = "ride_canceled"
	CodeCancelConfirm   = "cancel_confirmed"
	CodeRideCompleted   = "ride_completed"
	CodeRideStarted     = "ride_started"
	CodeUserBlocked     = "user_blocked"
	CodeConnection      = "connection_error"
	CodeReconnectGaveUp = "reconnect_failed"
	CodeMultipleRoles   = "multiple_roles"
)

// Notification is one user-visible message
type Notification struct {
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// New builds a notification with a fresh id
func New(level Level, code, message string) Notification {
	return Notification{
		ID:      uuid.New().String(),
		Level:   level,
		Code:    code,
		Message: message,
		At:      time.Now(),
	}
}

// FromError converts an error into a notification, picking the level from its kind
func FromError(err error) Notification {
	appErr := errors.GetAppError(err)
	level := LevelError
	if appErr.Kind == errors.KindBusiness || appErr.Kind == errors.KindTransport {
		level = LevelWarning
	}
	return New(level, appErr.Code, appErr.Message)
}

// Target is a surface of the rendering layer
type Target string

const (
	TargetLogin   Target = "login"
	TargetHome    Target = "home"
	TargetRide    Target = "ride"
	TargetPayment Target = "payment"
)

// Navigation asks the rendering layer to move to a surface
type Navigation struct {
	Target    Target `json:"target"`
	BookingID string `json:"bookingId,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Notifier receives side effects
type Notifier interface {
	Notify(n Notification)
	// Dismiss withdraws any visible notification carrying code.
	Dismiss(code string)
	Navigate(nav Navigation)
}

// Bus fans side effects out to every subscribed Notifier
type Bus struct {
	mu     sync.RWMutex
	sinks  []Notifier
	logger *logger.Logger
}

// NewBus creates a bus that logs every effect it forwards
func NewBus(log *logger.Logger) *Bus {
	return &Bus{logger: log.Named("notify")}
}

// Subscribe adds a sink
func (b *Bus) Subscribe(n Notifier) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, n)
}

// Notify implements Notifier
func (b *Bus) Notify(n Notification) {
	b.logger.Info("Notification raised",
		logger.String("level", string(n.Level)),
		logger.String("code", n.Code),
		logger.String("message", n.Message),
	)
	for _, s := range b.snapshot() {
		s.Notify(n)
	}
}

// Dismiss implements Notifier
func (b *Bus) Dismiss(code string) {
	for _, s := range b.snapshot() {
		s.Dismiss(code)
	}
}

// Navigate implements Notifier
func (b *Bus) Navigate(nav Navigation) {
	b.logger.Info("Navigation requested",
		logger.String("target", string(nav.Target)),
		logger.String("reason", nav.Reason),
	)
	for _, s := range b.snapshot() {
		s.Navigate(nav)
	}
}

func (b *Bus) snapshot() []Notifier {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Notifier(nil), b.sinks...)
}

// Recorder is a Notifier that keeps everything it receives
type Recorder struct {
	mu            sync.Mutex
	notifications []Notification
	dismissed     []string
	navigations   []Navigation
}

// Notify implements Notifier
func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

// Dismiss implements Notifier
func (r *Recorder) Dismiss(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dismissed = append(r.dismissed, code)
}

// Navigate implements Notifier
func (r *Recorder) Navigate(nav Navigation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.navigations = append(r.navigations, nav)
}

// Notifications returns the recorded notifications in order
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notifications...)
}

// Codes returns the codes of the recorded notifications in order
func (r *Recorder) Codes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.notifications))
	for _, n := range r.notifications {
		out = append(out, n.Code)
	}
	return out
}

// Dismissed returns the dismissed codes in order
func (r *Recorder) Dismissed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.dismissed...)
}

// Navigations returns the recorded navigation requests in order
func (r *Recorder) Navigations() []Navigation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Navigation(nil), r.navigations...)
}
