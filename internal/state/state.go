// Package state holds the process-wide state container of the realtime core.
// Three slices (session, ride, chat) are mutated only from the event loop and
// read from anywhere through cloned snapshots.
package state

import (
	"sync"

	"github.com/gocomet/ride-realtime/internal/domain/chat"
	"github.com/gocomet/ride-realtime/internal/domain/identity"
	"github.com/gocomet/ride-realtime/internal/domain/ride"
)

// SessionStatus is the liveness of the realtime channel
type SessionStatus string

const (
	StatusDisconnected SessionStatus = "disconnected"
	StatusConnecting   SessionStatus = "connecting"
	StatusConnected    SessionStatus = "connected"
)

// PaymentStatus tracks the requesting side's payment after completion
type PaymentStatus string

const (
	PaymentNone    PaymentStatus = ""
	PaymentPending PaymentStatus = "pending"
)

// Slice names one of the three state slices
type Slice string

const (
	SliceSession Slice = "session"
	SliceRide    Slice = "ride"
	SliceChat    Slice = "chat"
)

// Session is the session slice
type Session struct {
	Status     SessionStatus `json:"status"`
	Role       identity.Role `json:"role"`
	UserID     string        `json:"userId,omitempty"`
	Generation uint64        `json:"generation"`
}

// Ride is the ride slice: the pending offer, its countdown and the active ride
type Ride struct {
	Offer              *ride.Offer   `json:"offer,omitempty"`
	Countdown          int           `json:"countdown"`
	Active             *ride.Ride    `json:"ride,omitempty"`
	Payment            PaymentStatus `json:"paymentStatus,omitempty"`
	PinInFlight        bool          `json:"pinInFlight"`
	CompletionInFlight bool          `json:"completionInFlight"`
	// Inline carries the last business rejection shown next to the ride view.
	Inline string `json:"inline,omitempty"`
}

func (r Ride) clone() Ride {
	out := r
	if r.Offer != nil {
		o := *r.Offer
		out.Offer = &o
	}
	out.Active = r.Active.Clone()
	return out
}

// ChatState is the part of the chat slice not derived from other slices
type ChatState struct {
	RecipientTyping bool `json:"isRecipientTyping"`
	Unread          int  `json:"unread"`
	Attached        bool `json:"attached"`
}

// Chat is the chat projection handed to readers
type Chat struct {
	RideID     string         `json:"rideId,omitempty"`
	Messages   []chat.Message `json:"messages"`
	Connection SessionStatus  `json:"connection"`
	ChatState
}

// Change describes one committed mutation
type Change struct {
	Slice   Slice  `json:"slice"`
	Version uint64 `json:"version"`
}

// Listener observes committed changes. Listeners run on the mutating
// goroutine after the lock is released and must not block.
type Listener func(Change)

// Store is the state container
type Store struct {
	mu        sync.RWMutex
	session   Session
	ride      Ride
	chat      ChatState
	version   uint64
	listeners map[int]Listener
	nextID    int
}

// New creates an empty store with a disconnected session
func New() *Store {
	return &Store{
		session:   Session{Status: StatusDisconnected},
		listeners: make(map[int]Listener),
	}
}

// Session returns the session slice
func (s *Store) Session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Ride returns a deep copy of the ride slice
func (s *Store) Ride() Ride {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ride.clone()
}

// Chat projects the chat slice. Messages come from the active ride and the
// connection status mirrors the session.
func (s *Store) Chat() Chat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Chat{
		Messages:   []chat.Message{},
		Connection: s.session.Status,
		ChatState:  s.chat,
	}
	if s.ride.Active != nil {
		out.RideID = s.ride.Active.BookingID
		out.Messages = append(out.Messages, s.ride.Active.ChatMessages...)
	}
	return out
}

// Version is incremented on every committed change
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// UpdateSession mutates the session slice
func (s *Store) UpdateSession(fn func(*Session)) {
	s.mu.Lock()
	fn(&s.session)
	s.commit(SliceSession)
}

// UpdateRide mutates the ride slice. fn receives the live value; pointers
// it stores become owned by the store.
func (s *Store) UpdateRide(fn func(*Ride)) {
	s.mu.Lock()
	fn(&s.ride)
	s.commit(SliceRide)
}

// UpdateChat mutates the chat state
func (s *Store) UpdateChat(fn func(*ChatState)) {
	s.mu.Lock()
	fn(&s.chat)
	s.commit(SliceChat)
}

// ClearRide drops the offer, the ride and all chat state. Attachment of the
// chat view survives because it belongs to the rendering layer.
func (s *Store) ClearRide() {
	s.mu.Lock()
	s.ride = Ride{}
	s.chat = ChatState{Attached: s.chat.Attached}
	s.commit(SliceRide, SliceChat)
}

// AppendMessage adds m to the active ride's transcript and applies fn to the
// chat state in the same change. It reports false when there is no active
// ride.
func (s *Store) AppendMessage(m chat.Message, fn func(*ChatState)) bool {
	s.mu.Lock()
	if s.ride.Active == nil {
		s.mu.Unlock()
		return false
	}
	s.ride.Active.AppendMessage(m)
	if fn != nil {
		fn(&s.chat)
	}
	s.commit(SliceRide, SliceChat)
	return true
}

// Subscribe registers l and returns a function removing it
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// commit must be called with the write lock held; it releases it.
func (s *Store) commit(slices ...Slice) {
	s.version++
	changes := make([]Change, 0, len(slices))
	for _, slice := range slices {
		changes = append(changes, Change{Slice: slice, Version: s.version})
	}
	listeners := s.snapshotListeners()
	s.mu.Unlock()
	for _, c := range changes {
		for _, l := range listeners {
			l(c)
		}
	}
}

func (s *Store) snapshotListeners() []Listener {
	out := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l)
	}
	return out
}
