package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gocomet/ride-realtime/internal/api/dto"
	"github.com/gocomet/ride-realtime/internal/domain/chat"
)

// SendMessage handles POST /v1/chat/messages
func (h *Handlers) SendMessage(c *gin.Context) {
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	h.chatIntent(c, http.StatusCreated, func() error {
		return h.Core.SendMessage(req.Message, chat.Type(req.Type), req.FileURL)
	})
}

// Typing handles POST /v1/chat/typing
func (h *Handlers) Typing(c *gin.Context) {
	h.chatIntent(c, http.StatusOK, h.Core.NotifyTyping)
}

// AttachChat handles POST /v1/chat/attach
func (h *Handlers) AttachChat(c *gin.Context) {
	h.chatIntent(c, http.StatusOK, h.Core.AttachChat)
}

// DetachChat handles POST /v1/chat/detach
func (h *Handlers) DetachChat(c *gin.Context) {
	h.chatIntent(c, http.StatusOK, h.Core.DetachChat)
}

func (h *Handlers) chatIntent(c *gin.Context, status int, fn func() error) {
	if err := fn(); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(status, dto.NewChatResponse(h.Core.Chat()))
}
