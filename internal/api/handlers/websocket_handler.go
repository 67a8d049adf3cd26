package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gocomet/ride-realtime/internal/api/dto"
	"github.com/gocomet/ride-realtime/internal/state"
	"github.com/gocomet/ride-realtime/pkg/logger"
	"github.com/gocomet/ride-realtime/pkg/websocket"
	gorilla "github.com/gorilla/websocket"
)

var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // The bridge listens on loopback only
	},
}

// HandleWebSocket handles GET /v1/ws. The rendering layer receives the
// current slices first and then every change.
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Error("Failed to upgrade to WebSocket", logger.Err(err))
		return
	}

	client := websocket.NewClient(h.Hub, conn, h.Logger)
	for _, topic := range c.QueryArray("topic") {
		client.Subscribe(topic)
	}

	client.SendMessage(websocket.Message{Type: "snapshot", Topic: string(state.SliceSession), Data: dto.NewSessionResponse(h.Core.Session())})
	client.SendMessage(websocket.Message{Type: "snapshot", Topic: string(state.SliceRide), Data: dto.NewRideResponse(h.Core.Ride())})
	client.SendMessage(websocket.Message{Type: "snapshot", Topic: string(state.SliceChat), Data: dto.NewChatResponse(h.Core.Chat())})

	h.Hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
