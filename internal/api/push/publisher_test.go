package push

import (
	"sync"
	"testing"

	"github.com/gocomet/ride-realtime/internal/api/dto"
	"github.com/gocomet/ride-realtime/internal/domain/identity"
	"github.com/gocomet/ride-realtime/internal/notify"
	"github.com/gocomet/ride-realtime/internal/state"
	"github.com/gocomet/ride-realtime/pkg/logger"
	"github.com/gocomet/ride-realtime/pkg/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureHub struct {
	mu       sync.Mutex
	messages []websocket.Message
}

func (h *captureHub) Broadcast(m websocket.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, m)
}

func (h *captureHub) topics() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, m := range h.messages {
		out = append(out, m.Topic)
	}
	return out
}

// TestPublisher_StateChanges tests that every committed slice is pushed
func TestPublisher_StateChanges(t *testing.T) {
	hub := &captureHub{}
	store := state.New()
	p := NewPublisher(hub, logger.NewNop())
	stop := p.Listen(store, store.Subscribe)

	store.UpdateSession(func(s *state.Session) {
		s.Role = identity.RoleDriver
		s.UserID = "d1"
	})
	store.ClearRide()

	require.Equal(t, []string{"session", "ride", "chat"}, hub.topics())
	first := hub.messages[0]
	assert.Equal(t, TypeUpdate, first.Type)
	sess, ok := first.Data.(dto.SessionResponse)
	require.True(t, ok)
	assert.Equal(t, "d1", sess.UserID)

	stop()
	store.ClearRide()
	assert.Len(t, hub.topics(), 3)
}

// TestPublisher_Effects tests the notification and navigation streams
func TestPublisher_Effects(t *testing.T) {
	hub := &captureHub{}
	p := NewPublisher(hub, logger.NewNop())

	p.Notify(notify.New(notify.LevelInfo, notify.CodeRideOffer, "New ride request"))
	p.Dismiss(notify.CodeRideOffer)
	p.Navigate(notify.Navigation{Target: notify.TargetPayment, BookingID: "B1"})

	require.Len(t, hub.messages, 3)
	assert.Equal(t, TypeNotify, hub.messages[0].Type)
	assert.Equal(t, TopicNotify, hub.messages[1].Topic)
	assert.Equal(t, map[string]string{"code": notify.CodeRideOffer}, hub.messages[1].Data)
	assert.Equal(t, TopicNavigate, hub.messages[2].Topic)
}

// TestPublisher_NoSource tests that changes before Listen are ignored
func TestPublisher_NoSource(t *testing.T) {
	hub := &captureHub{}
	p := NewPublisher(hub, logger.NewNop())
	p.OnChange(state.Change{Slice: state.SliceRide})
	assert.Empty(t, hub.messages)
}
