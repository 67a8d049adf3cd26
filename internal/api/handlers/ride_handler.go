package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gocomet/ride-realtime/internal/api/dto"
	"github.com/gocomet/ride-realtime/internal/geolocation"
)

// AcceptOffer handles POST /v1/offer/accept
func (h *Handlers) AcceptOffer(c *gin.Context) {
	h.intent(c, "Offer accepted", h.Core.Accept)
}

// DeclineOffer handles POST /v1/offer/decline
func (h *Handlers) DeclineOffer(c *gin.Context) {
	h.intent(c, "Offer declined", h.Core.Decline)
}

// StartRide handles POST /v1/ride/start
func (h *Handlers) StartRide(c *gin.Context) {
	var req dto.StartRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	h.intent(c, "Ride started", func() error {
		return h.Core.StartRide(c.Request.Context(), req.Pin)
	})
}

// CompleteRide handles POST /v1/ride/complete
func (h *Handlers) CompleteRide(c *gin.Context) {
	h.intent(c, "Ride completed", func() error {
		return h.Core.CompleteRide(c.Request.Context())
	})
}

// CancelRide handles POST /v1/ride/cancel
func (h *Handlers) CancelRide(c *gin.Context) {
	var req dto.CancelRideRequest
	// The reason is optional; an empty body is fine.
	_ = c.ShouldBindJSON(&req)
	h.intent(c, "Cancellation requested", func() error {
		return h.Core.CancelRide(req.Reason)
	})
}

// LeaveRide handles POST /v1/ride/leave
func (h *Handlers) LeaveRide(c *gin.Context) {
	h.intent(c, "Ride cleared", h.Core.LeaveRide)
}

// UpdateLocation handles POST /v1/location
func (h *Handlers) UpdateLocation(c *gin.Context) {
	var req dto.UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	h.Core.UpdateLocation(geolocation.Position{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Accuracy:  req.Accuracy,
		At:        time.Now(),
	})
	c.JSON(http.StatusOK, dto.SuccessResponse{Message: "Location updated"})
}
