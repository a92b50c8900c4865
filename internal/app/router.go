// internal/app/router.go
package app

import (
	domauth "glasstrace-service/internal/domain/auth"
	authHandler "glasstrace-service/internal/handlers/auth"
	orderHandler "glasstrace-service/internal/handlers/order"
	stationHandler "glasstrace-service/internal/handlers/station"
	wsHandler "glasstrace-service/internal/handlers/ws"
	"glasstrace-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	AuthHandler       *authHandler.AuthHandler
	OrderHandler      *orderHandler.OrderHandler
	StationHandler    *stationHandler.StationHandler
	WSHandler         *wsHandler.WSHandler
	AuthMiddleware    *middleware.AuthMiddleware
	StationMiddleware *middleware.StationMiddleware
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== WebSocket ====================
	r.GET("/ws", h.AuthMiddleware.Auth(), h.WSHandler.Serve)

	// ==================== Public Auth Routes ====================
	authPublic := api.Group("/auth")
	{
		authPublic.POST("/register", h.AuthHandler.Register)
		authPublic.POST("/login", h.AuthHandler.Login)
		authPublic.POST("/refresh", h.AuthHandler.Refresh)
	}

	// ==================== Authenticated Auth Routes ====================
	authProtected := api.Group("/auth")
	authProtected.Use(h.AuthMiddleware.Auth())
	{
		authProtected.POST("/logout", h.AuthHandler.Logout)
		authProtected.GET("/me", h.AuthHandler.Me)
	}

	// ==================== Orders ====================
	orders := api.Group("/orders")
	orders.Use(h.AuthMiddleware.Auth())
	{
		// Any authenticated role may read
		orders.GET("", h.OrderHandler.ListOrders)
		orders.GET("/:id", h.OrderHandler.GetOrder)
		orders.GET("/:id/pieces", h.OrderHandler.ListOrderPieces)

		// Mutations need operator rank or better
		operator := orders.Group("")
		operator.Use(h.AuthMiddleware.RequireRole(domauth.RoleOperator))
		{
			operator.POST("", h.OrderHandler.CreateOrder)
			operator.PUT("/:id", h.OrderHandler.UpdateOrder)
		}

		admin := orders.Group("")
		admin.Use(h.AuthMiddleware.RequireRole(domauth.RoleAdmin))
		{
			admin.DELETE("/:id", h.OrderHandler.DeleteOrder)
		}
	}

	// ==================== Pieces ====================
	pieces := api.Group("/pieces")
	pieces.Use(h.AuthMiddleware.Auth())
	{
		pieces.GET("/:barcode", h.OrderHandler.GetPiece)
		pieces.GET("/:barcode/history", h.OrderHandler.GetPieceHistory)
	}

	// ==================== Manual Scanning ====================
	// Operators without a station credential scan under their own identity.
	api.POST("/scan",
		h.AuthMiddleware.Auth(),
		h.AuthMiddleware.RequireRole(domauth.RoleOperator),
		h.StationHandler.ManualScan,
	)

	// ==================== Lookups & Dashboard ====================
	lookups := api.Group("")
	lookups.Use(h.AuthMiddleware.Auth())
	{
		lookups.GET("/clients", h.OrderHandler.ListClients)
		lookups.GET("/glass-types", h.OrderHandler.ListGlassTypes)
		lookups.GET("/dashboard/summary", h.OrderHandler.Dashboard)
	}

	// ==================== Stations ====================
	stations := api.Group("/stations")
	{
		// Credential exchange; the station secret is the credential.
		// Session creation demands the proof minted by /authenticate.
		stations.POST("/authenticate", h.StationHandler.Authenticate)
		stations.POST("/sessions", h.StationHandler.CreateServiceSession)

		// Operations gated by a live service session
		scoped := stations.Group("")
		scoped.Use(h.StationMiddleware.ServiceSession())
		{
			scoped.PATCH("/sessions/:id", h.StationHandler.UpdateServiceSession)
			scoped.POST("/scan", h.StationHandler.Scan)
			scoped.GET("/pieces/:barcode", h.StationHandler.GetPiece)
		}
	}
}
