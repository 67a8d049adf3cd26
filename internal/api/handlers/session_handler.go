package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gocomet/ride-realtime/internal/api/dto"
	"github.com/gocomet/ride-realtime/internal/credential"
	"github.com/gocomet/ride-realtime/internal/domain/identity"
	"github.com/gocomet/ride-realtime/pkg/logger"
)

// Login handles PUT /v1/identity
func (h *Handlers) Login(c *gin.Context) {
	var req dto.IdentityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	role := identity.ParseRole(req.Role)
	h.Logger.Info("Identity update received", logger.String("role", string(role)))

	err := h.Core.Login(c.Request.Context(), role, credential.Credentials{
		ID:           req.ID,
		Token:        req.Token,
		RefreshToken: req.RefreshToken,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewSessionResponse(h.Core.Session()))
}

// Logout handles DELETE /v1/identity
func (h *Handlers) Logout(c *gin.Context) {
	if err := h.Core.Logout(); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSessionResponse(h.Core.Session()))
}

// GetSession handles GET /v1/session
func (h *Handlers) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSessionResponse(h.Core.Session()))
}

// GetRide handles GET /v1/ride
func (h *Handlers) GetRide(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewRideResponse(h.Core.Ride()))
}

// GetChat handles GET /v1/chat
func (h *Handlers) GetChat(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewChatResponse(h.Core.Chat()))
}
