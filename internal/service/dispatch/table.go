// Package dispatch demultiplexes inbound frames onto the session, ride and
// chat services through a fixed name to handler table.
package dispatch

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gocomet/ride-realtime/internal/domain/identity"
	"github.com/gocomet/ride-realtime/internal/notify"
	"github.com/gocomet/ride-realtime/internal/observability"
	"github.com/gocomet/ride-realtime/internal/protocol"
	"github.com/gocomet/ride-realtime/pkg/errors"
	"github.com/gocomet/ride-realtime/pkg/logger"
	"github.com/gocomet/ride-realtime/pkg/websocket"
)

// Session is the part of the Session Connection Manager frames drive
type Session interface {
	Identity() (identity.Role, string)
	MarkConnected()
	MarkDisconnected(reason string)
	MarkError(event, message string)
	MarkGaveUp()
	RotateCredentials(p protocol.TokenRefreshed) error
	Block(p protocol.UserBlocked)
}

// Rides is the part of the Ride Request Coordinator frames drive
type Rides interface {
	// Tracks reports whether id names the pending offer, the offer awaiting
	// an accept result or the active ride.
	Tracks(id string) bool
	ActiveRideID() string
	ReceiveOffer(req protocol.RideRequest) error
	AcceptResult(res protocol.AcceptResult) error
	DriverAssigned(p protocol.DriverAssigned) error
	NoDrivers(p protocol.Notice)
	RideCompleted(p protocol.RideCompleted) error
	Canceled(p protocol.Canceled) error
}

// Chat is the part of the Chat Channel frames drive
type Chat interface {
	Receive(m protocol.ChatMessage) error
	PeerTyping(t protocol.Typing) error
}

// Env is what a handler may touch
type Env struct {
	Session  Session
	Rides    Rides
	Chat     Chat
	Notifier notify.Notifier
	Logger   *logger.Logger
}

// Handler projects one frame onto state
type Handler func(env *Env, data json.RawMessage) error

// Table maps frame names to handlers
type Table struct {
	env      *Env
	handlers map[string]Handler
	metrics  observability.Recorder
	logger   *logger.Logger
}

// Registration binds a frame name to its handler
type Registration struct {
	Event   string
	Handler Handler
}

// Registrations is the fixed table of the realtime core
func Registrations() []Registration {
	return []Registration{
		{protocol.EventConnect, handleConnect},
		{protocol.EventDisconnect, handleDisconnect},
		{protocol.EventError, handleError(protocol.EventError)},
		{protocol.EventConnectError, handleError(protocol.EventConnectError)},
		{protocol.EventReconnectFailed, handleReconnectFailed},
		{protocol.EventTokenRefreshed, handleTokenRefreshed},
		{protocol.EventUserBlocked, handleUserBlocked},
		{protocol.EventRideRequest, handleRideRequest},
		{protocol.EventAcceptResult, handleAcceptResult},
		{protocol.EventDriverAssigned, handleDriverAssigned},
		{protocol.EventNoDrivers, handleNoDrivers},
		{protocol.EventRideCompleted, handleRideCompleted},
		{protocol.EventCanceled, handleCanceled},
		{protocol.EventReceiveMessage, handleReceiveMessage},
		{protocol.EventUserTyping, handleTyping(identity.RoleDriver)},
		{protocol.EventDriverTyping, handleTyping(identity.RoleRider)},
	}
}

// New builds a table. A frame name registered twice panics.
func New(env *Env, regs []Registration, metrics observability.Recorder) *Table {
	if metrics == nil {
		metrics = observability.Nop{}
	}
	t := &Table{
		env:      env,
		handlers: make(map[string]Handler, len(regs)),
		metrics:  metrics,
		logger:   env.Logger.Named("dispatch"),
	}
	for _, r := range regs {
		if _, dup := t.handlers[r.Event]; dup {
			panic(fmt.Sprintf("dispatch: duplicate handler for %q", r.Event))
		}
		t.handlers[r.Event] = r.Handler
	}
	return t
}

// Events lists the registered frame names in sorted order
func (t *Table) Events() []string {
	out := make([]string, 0, len(t.handlers))
	for name := range t.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs the handler of frame. Unknown frames are ignored; stale
// frames are dropped without touching state.
func (t *Table) Dispatch(frame websocket.Frame) {
	h, ok := t.handlers[frame.Event]
	if !ok {
		t.metrics.FrameDropped(frame.Event, "unknown")
		t.logger.Debug("Ignoring unknown frame", logger.String("event", frame.Event))
		return
	}
	t.metrics.FrameReceived(frame.Event)
	t.logger.Debug("Dispatching frame", logger.String("event", frame.Event))

	if err := h(t.env, frame.Data); err != nil {
		switch {
		case errors.Is(err, errors.ErrStaleFrame):
			t.metrics.FrameDropped(frame.Event, "stale")
			t.logger.Debug("Dropped stale frame", logger.String("event", frame.Event))
		default:
			t.metrics.FrameDropped(frame.Event, string(errors.KindOf(err)))
			t.logger.Warn("Frame handler failed",
				logger.String("event", frame.Event),
				logger.Err(err),
			)
		}
	}
}

// Handle adapts the table to a session frame handler
func (t *Table) Handle() func(websocket.Frame) {
	return t.Dispatch
}
