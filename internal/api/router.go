package api

import (
	"context"
	"net/http"
	"time"

	"github.com/baiweichihu/26b-website-sub001/internal/api/handlers"
	"github.com/baiweichihu/26b-website-sub001/internal/api/middleware"
	"github.com/baiweichihu/26b-website-sub001/internal/config"
	"github.com/baiweichihu/26b-website-sub001/internal/service"
	"github.com/baiweichihu/26b-website-sub001/internal/socket"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Config   *config.Config
	Services *service.Services
	Hub      *socket.Hub
	Logger   *zap.Logger
	// Health adds extra fields to /health, such as cache status
	Health func() gin.H
}

// Authenticator adapts identity resolution to the websocket handshake.
func Authenticator(auth service.AuthService) socket.AuthenticatorFunc {
	return func(ctx context.Context, token string) (socket.Identity, error) {
		p, err := auth.Resolve(ctx, token)
		if err != nil {
			return socket.Identity{}, err
		}
		return socket.Identity{UserID: p.ID, Staff: service.Classify(p).IsStaff()}, nil
	}
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(deps.Logger.Named("http")))

	corsConfig := cors.Config{
		AllowOrigins:     deps.Config.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
	}
	r.Use(cors.New(corsConfig))

	h := handlers.NewHandlers(deps.Services, deps.Hub, deps.Logger)
	wsHandler := socket.NewHandler(deps.Hub, Authenticator(deps.Services.Auth), deps.Config.CORSOrigins, deps.Logger)

	r.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status":     "healthy",
			"timestamp":  time.Now(),
			"storage":    deps.Config.StorageDriver,
			"ws_clients": deps.Hub.ConnectedClients(),
		}
		if deps.Health != nil {
			for k, v := range deps.Health() {
				body[k] = v
			}
		}
		c.JSON(http.StatusOK, body)
	})

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.Auth.Register)
			auth.POST("/login", h.Auth.Login)
			auth.POST("/refresh", h.Auth.RefreshToken)
			auth.POST("/logout", middleware.AuthMiddleware(deps.Services.Auth), h.Auth.Logout)
		}

		// WebSocket authenticates from the query string itself
		api.GET("/ws", wsHandler.HandleWebSocket)

		api.GET("/me", middleware.OptionalAuthMiddleware(deps.Services.Auth), h.Me.Get)

		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware(deps.Services.Auth))
		{
			protected.GET("/me/view", h.Me.View)

			requests := protected.Group("/access-requests")
			{
				requests.POST("", h.AccessRequest.Submit)
				requests.GET("/mine", h.AccessRequest.ListMine)
				requests.GET("/active", h.AccessRequest.Active)
			}

			admin := protected.Group("/admin")
			admin.Use(middleware.RequireStaff())
			{
				admin.GET("/access-requests", h.AccessRequest.ListForReview)
				admin.POST("/access-requests/:id/approve", h.AccessRequest.Approve)
				admin.POST("/access-requests/:id/reject", h.AccessRequest.Reject)

				// Superuser only; the admin service checks the tier itself
				admin.GET("/admins", h.Admin.List)
				admin.POST("/admins/:id", h.Admin.Appoint)
				admin.DELETE("/admins/:id", h.Admin.Remove)
				admin.PUT("/admins/:id/permissions", h.Admin.UpdatePermissions)
				admin.POST("/announcements", h.Admin.PublishAnnouncement)
			}

			notifications := protected.Group("/notifications")
			{
				notifications.GET("", h.Notification.List)
				notifications.GET("/count", h.Notification.Count)
				notifications.PUT("/read-all", h.Notification.MarkAllRead)
				notifications.PUT("/:id/read", h.Notification.MarkRead)
			}
		}
	}

	return r
}
