package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gocomet/ride-realtime/internal/api/dto"
	"github.com/gocomet/ride-realtime/internal/credential"
	"github.com/gocomet/ride-realtime/internal/domain/chat"
	"github.com/gocomet/ride-realtime/internal/domain/identity"
	"github.com/gocomet/ride-realtime/internal/geolocation"
	"github.com/gocomet/ride-realtime/internal/state"
	"github.com/gocomet/ride-realtime/pkg/errors"
	"github.com/gocomet/ride-realtime/pkg/logger"
	"github.com/gocomet/ride-realtime/pkg/websocket"
)

// Core is the realtime client as driven by the rendering layer
type Core interface {
	Session() state.Session
	Ride() state.Ride
	Chat() state.Chat

	Login(ctx context.Context, role identity.Role, creds credential.Credentials) error
	Logout() error

	Accept() error
	Decline() error
	StartRide(ctx context.Context, pin string) error
	CompleteRide(ctx context.Context) error
	CancelRide(reason string) error
	LeaveRide() error

	SendMessage(content string, typ chat.Type, fileURL string) error
	NotifyTyping() error
	AttachChat() error
	DetachChat() error

	UpdateLocation(p geolocation.Position)
}

// Handlers holds all handler dependencies
type Handlers struct {
	Core   Core
	Hub    *websocket.Hub
	Logger *logger.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(core Core, hub *websocket.Hub, log *logger.Logger) *Handlers {
	return &Handlers{
		Core:   core,
		Hub:    hub,
		Logger: log,
	}
}

// statusFor maps an error kind to an HTTP status
func statusFor(kind errors.Kind) int {
	switch kind {
	case errors.KindBusiness:
		return http.StatusUnprocessableEntity
	case errors.KindTransport:
		return http.StatusServiceUnavailable
	case errors.KindAuthorization:
		return http.StatusUnauthorized
	case errors.KindProtocol:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as an ErrorResponse
func (h *Handlers) respondError(c *gin.Context, err error) {
	appErr := errors.GetAppError(err)
	status := statusFor(appErr.Kind)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("Request failed",
			logger.String("path", c.FullPath()),
			logger.Err(err),
		)
	}
	c.JSON(status, dto.ErrorResponse{Code: appErr.Code, Message: appErr.Message})
}

func (h *Handlers) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{Code: "INVALID_REQUEST", Message: err.Error()})
}

// intent runs fn and answers with the resulting ride slice
func (h *Handlers) intent(c *gin.Context, message string, fn func() error) {
	if err := fn(); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Message: message, Data: dto.NewRideResponse(h.Core.Ride())})
}
