// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"log"

	"glasstrace-service/internal/config"
	"glasstrace-service/internal/db"
	authHandler "glasstrace-service/internal/handlers/auth"
	orderHandler "glasstrace-service/internal/handlers/order"
	stationHandler "glasstrace-service/internal/handlers/station"
	wsHandler "glasstrace-service/internal/handlers/ws"
	"glasstrace-service/internal/middleware"
	"glasstrace-service/internal/pkg/jwt"
	"glasstrace-service/internal/pkg/sessioncache"
	"glasstrace-service/internal/repository/postgres"
	authUsecase "glasstrace-service/internal/service/auth"
	orderUsecase "glasstrace-service/internal/service/order"
	stationUsecase "glasstrace-service/internal/service/station"
	"glasstrace-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.New()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	ctx := context.Background()

	// ----- Logger -----
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		DB:       0,
		PoolSize: 10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("redis connected", zap.String("addr", s.cfg.RedisAddr))

	// ----- JWT Manager -----
	jwtManager, err := jwt.LoadAndBuild(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT manager: %w", err)
	}

	// ----- Session Cache & Rate Limiter -----
	cache := sessioncache.NewCache(redisClient, logger)
	rateLimiter := sessioncache.NewRateLimiter(redisClient)

	// ----- Repositories -----
	authRepo := postgres.NewAuthRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	pieceRepo := postgres.NewPieceRepository(pool)
	stationRepo := postgres.NewStationRepository(pool)

	// ----- WebSocket Hub -----
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	// ----- Services (Usecases) -----
	authService := authUsecase.NewAuthService(authRepo, jwtManager, cache, rateLimiter, hub, logger)
	orderService := orderUsecase.NewOrderService(orderRepo, pieceRepo, logger)
	stationService := stationUsecase.NewStationService(stationRepo, pieceRepo, jwtManager, cache, rateLimiter, logger)

	// ----- Handlers -----
	authHandlerInst := authHandler.NewAuthHandler(authService, logger)
	orderHandlerInst := orderHandler.NewOrderHandler(orderService, logger)
	stationHandlerInst := stationHandler.NewStationHandler(stationService, logger)
	wsHandlerInst := wsHandler.NewWSHandler(hub, logger)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(authService)
	stationMiddleware := middleware.NewStationMiddleware(stationService)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		gin.Logger(),
	)

	// ----- Router -----
	handlers := &Handlers{
		AuthHandler:       authHandlerInst,
		OrderHandler:      orderHandlerInst,
		StationHandler:    stationHandlerInst,
		WSHandler:         wsHandlerInst,
		AuthMiddleware:    authMiddleware,
		StationMiddleware: stationMiddleware,
	}
	SetupRouter(s.engine, logger, handlers)

	// ----- Start HTTP -----
	log.Printf("server running on %s", s.cfg.HTTPAddr)
	return s.engine.Run(s.cfg.HTTPAddr)
}
