package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gocomet/ride-realtime/internal/api/handlers"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures the render bridge routes
func SetupRoutes(r *gin.Engine, h *handlers.Handlers, nrApp *newrelic.Application) {
	// Add New Relic middleware if enabled
	if nrApp != nil {
		r.Use(nrgin.Middleware(nrApp))
	}
	r.Use(RequestID(), Observability(h.Logger))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":             "healthy",
			"session":            h.Core.Session().Status,
			"render_connections": h.Hub.GetActiveConnections(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		// Push channel for the rendering layer
		v1.GET("/ws", h.HandleWebSocket)

		v1.PUT("/identity", h.Login)
		v1.DELETE("/identity", h.Logout)

		v1.GET("/session", h.GetSession)
		v1.GET("/ride", h.GetRide)
		v1.GET("/chat", h.GetChat)

		offer := v1.Group("/offer")
		{
			offer.POST("/accept", h.AcceptOffer)
			offer.POST("/decline", h.DeclineOffer)
		}

		ride := v1.Group("/ride")
		{
			ride.POST("/start", h.StartRide)
			ride.POST("/complete", h.CompleteRide)
			ride.POST("/cancel", h.CancelRide)
			ride.POST("/leave", h.LeaveRide)
		}

		chat := v1.Group("/chat")
		{
			chat.POST("/messages", h.SendMessage)
			chat.POST("/typing", h.Typing)
			chat.POST("/attach", h.AttachChat)
			chat.POST("/detach", h.DetachChat)
		}

		v1.POST("/location", h.UpdateLocation)
	}
}
