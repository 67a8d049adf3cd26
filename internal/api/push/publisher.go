// Package push forwards state changes and side effects to the rendering
// layer's websocket connections.
package push

import (
	"github.com/gocomet/ride-realtime/internal/api/dto"
	"github.com/gocomet/ride-realtime/internal/notify"
	"github.com/gocomet/ride-realtime/internal/state"
	"github.com/gocomet/ride-realtime/pkg/logger"
	"github.com/gocomet/ride-realtime/pkg/websocket"
)

// Message types pushed to the rendering layer
const (
	TypeUpdate    = "update"
	TypeNotify    = "notify"
	TypeDismiss   = "dismiss"
	TypeNavigate  = "navigate"
	TopicNotify   = "notification"
	TopicNavigate = "navigation"
)

// Snapshots reads the current state slices
type Snapshots interface {
	Session() state.Session
	Ride() state.Ride
	Chat() state.Chat
}

// Broadcaster queues a message for connected clients
type Broadcaster interface {
	Broadcast(message websocket.Message)
}

// Publisher implements notify.Notifier and a state listener on top of a hub
type Publisher struct {
	hub    Broadcaster
	source Snapshots
	logger *logger.Logger
}

var _ notify.Notifier = (*Publisher)(nil)

// NewPublisher creates a publisher. Call Listen once the source exists.
func NewPublisher(hub Broadcaster, log *logger.Logger) *Publisher {
	return &Publisher{hub: hub, logger: log.Named("push")}
}

// Listen starts forwarding slice changes from source. The returned func stops it.
func (p *Publisher) Listen(source Snapshots, subscribe func(state.Listener) func()) func() {
	p.source = source
	return subscribe(p.OnChange)
}

// OnChange pushes the changed slice
func (p *Publisher) OnChange(ch state.Change) {
	if p.source == nil {
		return
	}
	var data interface{}
	switch ch.Slice {
	case state.SliceSession:
		data = dto.NewSessionResponse(p.source.Session())
	case state.SliceRide:
		data = dto.NewRideResponse(p.source.Ride())
	case state.SliceChat:
		data = dto.NewChatResponse(p.source.Chat())
	default:
		p.logger.Warn("Unknown state slice", logger.String("slice", string(ch.Slice)))
		return
	}
	p.hub.Broadcast(websocket.Message{Type: TypeUpdate, Topic: string(ch.Slice), Data: data})
}

// Notify pushes a notification
func (p *Publisher) Notify(n notify.Notification) {
	p.hub.Broadcast(websocket.Message{Type: TypeNotify, Topic: TopicNotify, Data: n})
}

// Dismiss withdraws notifications carrying code
func (p *Publisher) Dismiss(code string) {
	p.hub.Broadcast(websocket.Message{Type: TypeDismiss, Topic: TopicNotify, Data: map[string]string{"code": code}})
}

// Navigate pushes a navigation request
func (p *Publisher) Navigate(nav notify.Navigation) {
	p.hub.Broadcast(websocket.Message{Type: TypeNavigate, Topic: TopicNavigate, Data: nav})
}
