// Package chat implements the per-ride chat: optimistic sends, debounced
// typing indicators and unread counting.
package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/gocomet/ride-realtime/internal/domain/chat"
	"github.com/gocomet/ride-realtime/internal/domain/identity"
	"github.com/gocomet/ride-realtime/internal/observability"
	"github.com/gocomet/ride-realtime/internal/protocol"
	"github.com/gocomet/ride-realtime/internal/state"
	"github.com/gocomet/ride-realtime/pkg/clock"
	"github.com/gocomet/ride-realtime/pkg/errors"
	"github.com/gocomet/ride-realtime/pkg/eventloop"
	"github.com/gocomet/ride-realtime/pkg/logger"
)

// DefaultTypingDebounce is how long after the last keystroke the stop frame is sent
const DefaultTypingDebounce = 1500 * time.Millisecond

// Transport is the outbound side of the session
type Transport interface {
	Connected() bool
	Emit(event string, payload interface{}) error
	Identity() (identity.Role, string)
}

// Channel is the Chat Channel. Methods run on the event loop.
type Channel struct {
	exec      eventloop.Executor
	clock     clock.Clock
	store     *state.Store
	transport Transport
	metrics   observability.Recorder
	logger    *logger.Logger
	debounce  time.Duration

	typingTimer clock.Timer
	// typingSeq invalidates stop timers that were re-armed or cancelled.
	typingSeq uint64
}

// NewChannel creates a chat channel. A non-positive debounce selects
// DefaultTypingDebounce.
func NewChannel(exec eventloop.Executor, clk clock.Clock, store *state.Store, transport Transport, debounce time.Duration, metrics observability.Recorder, log *logger.Logger) *Channel {
	if debounce <= 0 {
		debounce = DefaultTypingDebounce
	}
	if metrics == nil {
		metrics = observability.Nop{}
	}
	return &Channel{
		exec:      exec,
		clock:     clk,
		store:     store,
		transport: transport,
		metrics:   metrics,
		logger:    log.Named("chat"),
		debounce:  debounce,
	}
}

// party fills userId or driverId depending on the local role
func (c *Channel) party() (domain.Sender, protocol.Party) {
	role, id := c.transport.Identity()
	if role == identity.RoleDriver {
		return domain.SenderDriver, protocol.Party{DriverID: id}
	}
	return domain.SenderFor(role), protocol.Party{UserID: id}
}

// Send emits a message and echoes it into the transcript without waiting
// for the server.
func (c *Channel) Send(content string, typ domain.Type, fileURL string) error {
	if !c.transport.Connected() {
		return errors.ErrNotConnected
	}
	if typ == "" {
		typ = domain.TypeText
	}
	if !typ.IsValid() {
		return errors.Business("INVALID_MESSAGE_TYPE", "Unsupported message type", nil)
	}
	content = strings.TrimSpace(content)
	if typ == domain.TypeText && content == "" {
		return errors.ErrEmptyMessage
	}
	if typ == domain.TypeImage && fileURL == "" {
		return errors.ErrEmptyMessage
	}
	rideID := c.activeRideID()
	if rideID == "" {
		return errors.ErrNoActiveRide
	}

	c.stopTyping(rideID)

	sender, party := c.party()
	msg := domain.Message{
		LocalID:   uuid.New().String(),
		Sender:    sender,
		Content:   content,
		Timestamp: domain.FormatTimestamp(c.clock.Now()),
		Type:      typ,
		FileURL:   fileURL,
	}
	err := c.transport.Emit(protocol.EmitSendMessage, protocol.SendMessage{
		RideID:    rideID,
		Sender:    msg.Sender,
		Message:   msg.Content,
		Timestamp: msg.Timestamp,
		Type:      msg.Type,
		FileURL:   msg.FileURL,
		Party:     party,
	})
	if err != nil {
		return err
	}
	c.store.AppendMessage(msg, nil)
	c.metrics.MessageSent()
	c.logger.Debug("Message sent", logger.String("ride_id", rideID), logger.String("local_id", msg.LocalID))
	return nil
}

// NotifyTyping signals a keystroke. The start frame is sent once per burst
// and the stop frame once the burst has been quiet for the debounce window.
func (c *Channel) NotifyTyping() error {
	rideID := c.activeRideID()
	if rideID == "" {
		return errors.ErrNoActiveRide
	}
	if !c.transport.Connected() {
		return errors.ErrNotConnected
	}
	if c.typingTimer == nil {
		c.emitTyping(rideID, true)
	} else {
		c.typingTimer.Stop()
	}
	c.typingSeq++
	seq := c.typingSeq
	c.typingTimer = c.clock.AfterFunc(c.debounce, func() {
		c.exec.Post(func() { c.typingElapsed(seq, rideID) })
	})
	return nil
}

func (c *Channel) typingElapsed(seq uint64, rideID string) {
	if seq != c.typingSeq {
		return
	}
	c.typingTimer = nil
	c.emitTyping(rideID, false)
}

// stopTyping cancels a pending stop timer and sends the stop frame now
func (c *Channel) stopTyping(rideID string) {
	c.cancelTyping()
	c.emitTyping(rideID, false)
}

func (c *Channel) cancelTyping() {
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
	c.typingSeq++
}

func (c *Channel) emitTyping(rideID string, typing bool) {
	sender, party := c.party()
	err := c.transport.Emit(protocol.EmitTyping, protocol.TypingOut{
		RideID:   rideID,
		Sender:   sender,
		IsTyping: typing,
		Party:    party,
	})
	if err != nil {
		c.logger.Debug("Failed to emit typing", logger.Bool("is_typing", typing), logger.Err(err))
	}
}

// Receive appends an inbound message. It counts as unread while the chat
// view is detached, unless the local user wrote it.
func (c *Channel) Receive(m protocol.ChatMessage) error {
	msg := m.Domain()
	local, _ := c.party()
	ok := c.store.AppendMessage(msg, func(s *state.ChatState) {
		s.RecipientTyping = false
		if !s.Attached && msg.Sender != local {
			s.Unread++
		}
	})
	if !ok {
		return errors.ErrNoActiveRide
	}
	c.metrics.MessageReceived()
	return nil
}

// PeerTyping mirrors the other party's typing indicator
func (c *Channel) PeerTyping(t protocol.Typing) error {
	active := t.Active()
	c.store.UpdateChat(func(s *state.ChatState) { s.RecipientTyping = active })
	return nil
}

// Attach marks the chat view visible and resets the unread counter. Only
// messages received afterwards are counted again once detached.
func (c *Channel) Attach() {
	c.store.UpdateChat(func(s *state.ChatState) {
		s.Attached = true
		s.Unread = 0
	})
}

// Detach marks the chat view hidden
func (c *Channel) Detach() {
	c.store.UpdateChat(func(s *state.ChatState) { s.Attached = false })
}

// Halt cancels the typing timer without emitting. It runs on session
// teardown and when the ride view is cleared.
func (c *Channel) Halt() {
	c.cancelTyping()
	c.store.UpdateChat(func(s *state.ChatState) { s.RecipientTyping = false })
}

func (c *Channel) activeRideID() string {
	if r := c.store.Ride().Active; r != nil {
		return r.BookingID
	}
	return ""
}
