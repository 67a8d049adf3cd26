package state

import (
	"testing"

	"github.com/gocomet/ride-realtime/internal/domain/chat"
	"github.com/gocomet/ride-realtime/internal/domain/ride"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStore_ChatProjection tests that chat messages and connection status are derived from the other slices
func TestStore_ChatProjection(t *testing.T) {
	s := New()

	c := s.Chat()
	assert.Empty(t, c.Messages)
	assert.Equal(t, StatusDisconnected, c.Connection)

	s.UpdateSession(func(sess *Session) { sess.Status = StatusConnected })
	s.UpdateRide(func(r *Ride) {
		r.Active = &ride.Ride{BookingID: "B1", Status: ride.StatusAccepted}
		r.Active.AppendMessage(chat.Message{Sender: chat.SenderUser, Content: "hi", Type: chat.TypeText})
	})

	c = s.Chat()
	assert.Equal(t, "B1", c.RideID)
	assert.Equal(t, StatusConnected, c.Connection)
	require.Len(t, c.Messages, 1)
	assert.Equal(t, "hi", c.Messages[0].Content)
}

// TestStore_SnapshotsAreCopies tests that readers cannot mutate the store through a snapshot
func TestStore_SnapshotsAreCopies(t *testing.T) {
	s := New()
	s.UpdateRide(func(r *Ride) {
		r.Offer = &ride.Offer{BookingID: "B1"}
		r.Active = &ride.Ride{BookingID: "B1"}
	})

	snap := s.Ride()
	snap.Offer.BookingID = "changed"
	snap.Active.AppendMessage(chat.Message{Content: "leak"})

	fresh := s.Ride()
	assert.Equal(t, "B1", fresh.Offer.BookingID)
	assert.Empty(t, fresh.Active.ChatMessages)
}

// TestStore_Listeners tests the change feed
func TestStore_Listeners(t *testing.T) {
	s := New()
	var seen []Slice
	unsubscribe := s.Subscribe(func(c Change) { seen = append(seen, c.Slice) })

	s.UpdateSession(func(*Session) {})
	s.UpdateChat(func(c *ChatState) { c.Unread = 2 })
	s.ClearRide()

	assert.Equal(t, []Slice{SliceSession, SliceChat, SliceRide, SliceChat}, seen)

	unsubscribe()
	s.UpdateRide(func(*Ride) {})
	assert.Len(t, seen, 4)
}

// TestStore_ClearRideKeepsAttachment tests that clearing a ride resets chat counters but not the view lifecycle
func TestStore_ClearRideKeepsAttachment(t *testing.T) {
	s := New()
	s.UpdateChat(func(c *ChatState) {
		c.Attached = true
		c.Unread = 3
		c.RecipientTyping = true
	})
	s.UpdateRide(func(r *Ride) { r.Active = &ride.Ride{BookingID: "B1"} })

	s.ClearRide()

	c := s.Chat()
	assert.True(t, c.Attached)
	assert.Zero(t, c.Unread)
	assert.False(t, c.RecipientTyping)
	assert.Nil(t, s.Ride().Active)
}

// TestStore_AppendMessage tests that a transcript append notifies both ride and chat readers
func TestStore_AppendMessage(t *testing.T) {
	s := New()
	var seen []Slice
	s.Subscribe(func(c Change) { seen = append(seen, c.Slice) })

	assert.False(t, s.AppendMessage(chat.Message{Content: "orphan"}, nil))
	assert.Empty(t, seen)

	s.UpdateRide(func(r *Ride) { r.Active = &ride.Ride{BookingID: "B1"} })
	seen = nil

	ok := s.AppendMessage(chat.Message{Sender: chat.SenderUser, Content: "hi"}, func(c *ChatState) { c.Unread++ })
	require.True(t, ok)
	assert.Equal(t, []Slice{SliceRide, SliceChat}, seen)

	c := s.Chat()
	require.Len(t, c.Messages, 1)
	assert.Equal(t, "hi", c.Messages[0].Content)
	assert.Equal(t, 1, c.Unread)
}
