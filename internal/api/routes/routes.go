// internal/api/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"shiptrack-api-server/internal/api/handlers"
	"shiptrack-api-server/internal/api/middleware"
	"shiptrack-api-server/internal/auth"
	"shiptrack-api-server/internal/models"
)

// Dependencies carries everything the router wires into handlers.
type Dependencies struct {
	Tokens         *auth.TokenManager
	Shipments      *handlers.ShipmentHandler
	Notifications  *handlers.NotificationHandler
	Messages       *handlers.MessageHandler
	Issues         *handlers.IssueHandler
	Profiles       *handlers.ProfileHandler
	Geocode        *handlers.GeocodeHandler
	WebSocket      *handlers.WebSocketHandler
	AllowedOrigins []string
	Log            *zap.Logger
}

func SetupRouter(d Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(d.Log))
	router.Use(cors.New(corsConfig(d.AllowedOrigins)))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	const (
		customer = models.RoleCustomer
		staff    = models.RoleStaff
		agent    = models.RoleAgent
		admin    = models.RoleAdmin
	)

	apiV1 := router.Group("/api/v1")
	{
		// === Public ===
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/register", d.Profiles.Register)
			authGroup.POST("/login", d.Profiles.Login)
		}

		// === Authenticated ===
		protected := apiV1.Group("/")
		protected.Use(middleware.Authenticate(d.Tokens))
		{
			protected.GET("/ws", d.WebSocket.ServeWs)

			shipments := protected.Group("/shipments")
			{
				shipments.GET("", d.Shipments.ListShipments)
				shipments.GET("/stats", d.Shipments.GetStats)
				shipments.GET("/:id", d.Shipments.GetShipment)
				shipments.GET("/:id/history", d.Shipments.GetHistory)
				shipments.GET("/:id/delivery-proof", d.Shipments.GetDeliveryProof)
				shipments.GET("/:id/messages", d.Messages.FetchMessages)
				shipments.POST("/:id/messages", d.Messages.SendMessage)

				shipments.POST("", middleware.Authorize(customer, admin), d.Shipments.CreateShipment)

				staffRoutes := shipments.Group("/")
				staffRoutes.Use(middleware.Authorize(staff, admin))
				{
					staffRoutes.POST("/:id/approve", d.Shipments.ApproveShipment)
					staffRoutes.POST("/:id/reject", d.Shipments.RejectShipment)
					staffRoutes.POST("/:id/assign", d.Shipments.AssignAgent)
				}

				agentRoutes := shipments.Group("/")
				agentRoutes.Use(middleware.Authorize(agent))
				{
					agentRoutes.POST("/:id/accept", d.Shipments.AcceptRequest)
					agentRoutes.POST("/:id/pickup", d.Shipments.ConfirmPickup)
					agentRoutes.POST("/:id/in-transit", d.Shipments.MarkInTransit)
					agentRoutes.POST("/:id/deliver", d.Shipments.MarkDelivered)
					agentRoutes.PUT("/:id/location", d.Shipments.UpdateLocation)
					agentRoutes.POST("/:id/delivery-photo", d.Shipments.UploadDeliveryPhoto)
				}
			}

			protected.GET("/agent/tasks", middleware.Authorize(agent), d.Shipments.GetAgentTasks)

			notifications := protected.Group("/notifications")
			{
				notifications.GET("", d.Notifications.ListNotifications)
				notifications.POST("/:id/read", d.Notifications.MarkAsRead)
				notifications.DELETE("", d.Notifications.ClearNotifications)
			}

			issues := protected.Group("/issues")
			{
				issues.POST("", middleware.Authorize(customer), d.Issues.ReportIssue)
				issues.GET("", d.Issues.ListIssues)
				issues.POST("/:id/resolve", middleware.Authorize(staff, admin), d.Issues.ResolveIssue)
			}

			profile := protected.Group("/profile")
			{
				profile.GET("", d.Profiles.GetProfile)
				profile.PUT("", d.Profiles.UpdateProfile)
				profile.POST("/avatar", d.Profiles.UploadAvatar)
			}

			protected.GET("/geocode/reverse", d.Geocode.ReverseGeocode)
		}
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", "Idempotency-Key")
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
