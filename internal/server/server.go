// Package server contains HTTP and WebSocket handlers for the broadcast API.
package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"limelight/internal/cache"
	"limelight/internal/chat"
	"limelight/internal/config"
	"limelight/internal/database"
	"limelight/internal/events"
	"limelight/internal/ingest"
	"limelight/internal/middleware"
	"limelight/internal/models"
	"limelight/internal/moderation"
	"limelight/internal/presence"
	"limelight/internal/repository"
	"limelight/internal/room"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	userRepo repository.UserRepository

	hub     *events.Hub
	mirror  *events.Mirror
	pub     events.Publisher
	tracker *presence.Tracker

	coordinator *room.Coordinator
	chatService *chat.Service
	modService  *moderation.Service
	bridge      *ingest.Bridge
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	cache.InitRedis(cfg.RedisURL)
	redisClient := cache.GetClient()

	return NewServerWithDeps(cfg, db, redisClient)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB/Redis.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	middleware.InitMiddleware(cfg)

	roomRepo := repository.NewRoomRepository(db)
	chatRepo := repository.NewChatRepository(db)
	reportRepo := repository.NewReportRepository(db)
	hostBanRepo := repository.NewHostBanRepository(db)
	userRepo := repository.NewUserRepository(db)

	prom := middleware.InitMetrics("limelight-api")

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: prom,
		userRepo:       userRepo,
	}

	server.hub = events.NewHub()
	server.mirror = events.NewMirror(server.hub, redisClient)
	server.pub = server.mirror
	server.tracker = presence.NewTracker(server.pub, redisClient)

	server.coordinator = room.NewCoordinator(roomRepo, hostBanRepo, server.pub, server.hub, server.tracker)
	server.chatService = chat.NewService(chatRepo, roomRepo, userRepo, server.pub)
	server.modService = moderation.NewService(reportRepo, hostBanRepo, server.coordinator, server.pub)
	server.bridge = ingest.NewBridge(
		server.coordinator,
		redisClient,
		cfg.ManifestBaseURL,
		time.Duration(cfg.IngestDetectionWindowSec)*time.Second,
	)

	return server, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New())

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit
	// (e.g. limiter) so browser clients still receive CORS headers on error
	// responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Global rate limiting (100 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they should be handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	// Public room browsing. GetRoom filters the snapshot by privacy when the
	// caller carries no usable identity.
	rooms := api.Group("/rooms", middleware.OptionalAuth(s.lookupUser))
	rooms.Get("/", s.ListActiveRooms)
	rooms.Get("/:id", s.GetRoom)

	// Ingest callbacks authenticate by stream key, not JWT.
	ingestGroup := api.Group("/ingest")
	ingestGroup.Post("/publish", s.IngestPublish)
	ingestGroup.Post("/keepalive", s.IngestKeepAlive)
	ingestGroup.Post("/unpublish", s.IngestUnpublish)

	// WebSocket endpoints take the token as a query parameter because browser
	// WebSocket clients cannot set headers. Registered ahead of the protected
	// group so the header-only AuthRequired never sees /api/ws traffic.
	ws := api.Group("/ws", middleware.WebSocketAuthRequired(s.lookupUser))
	ws.Get("/rooms/:id", s.RoomEventsHandler())
	ws.Get("/admin", middleware.RequireCapability(models.CapResolveReports), s.AdminEventsHandler())

	// Protected routes
	protected := api.Group("", middleware.AuthRequired(s.lookupUser))

	protected.Get("/me/rooms", s.GetMyRooms)

	protRooms := protected.Group("/rooms")
	protRooms.Post("/", middleware.RateLimit(
		s.redis, 5, 10*time.Minute, "create_room"), s.CreateRoom)

	// Specific /:id/:resource routes BEFORE generic /:id routes
	protRooms.Post("/:id/go-live", s.GoLiveRoom)
	protRooms.Post("/:id/end", s.EndRoom)
	protRooms.Put("/:id/privacy", s.UpdateRoomPrivacy)
	protRooms.Get("/:id/viewers", s.ListViewers)
	protRooms.Get("/:id/messages", s.GetChatHistory)
	protRooms.Post("/:id/messages", middleware.RateLimit(
		s.redis, 30, time.Minute, "room_chat"), s.PostChatMessage)
	protRooms.Get("/:id/bans", s.ListChatBans)
	protRooms.Post("/:id/bans/:userId", s.BanChatUser)
	protRooms.Delete("/:id/bans/:userId", s.UnbanChatUser)
	protRooms.Post("/:id/reports", middleware.RateLimit(
		s.redis, 10, 10*time.Minute, "report"), s.SubmitReport)
	protRooms.Put("/:id", s.UpdateRoomDetails)

	// Admin routes. Fine-grained capability checks live in the services; the
	// group gate just keeps non-moderators out entirely.
	admin := protected.Group("/admin", middleware.RequireCapability(models.CapResolveReports))
	admin.Get("/rooms", s.AdminListActiveRooms)
	admin.Get("/reports", s.ListReports)
	admin.Get("/reports/rooms", s.ReportedRooms)
	admin.Post("/reports/:id/resolve", s.ResolveReport)
	admin.Post("/reports/:id/dismiss", s.DismissReport)
	admin.Post("/rooms/:id/end", s.AdminEndRoom)
	admin.Post("/rooms/:id/ban", s.AdminBanRoom)
	admin.Get("/hosts/banned", s.ListBannedHosts)
	admin.Post("/hosts/:userId/unban", s.AdminUnbanHost)
}

// lookupUser resolves a caller's user record for capability resolution.
func (s *Server) lookupUser(ctx context.Context, userID uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "healthy"
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	} else {
		redisStatus = "unavailable"
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := fiber.New(fiber.Config{
		AppName: "Limelight API",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Printf("Error: %v", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.app = app

	s.SetupMiddleware(app)
	s.SetupRoutes(app)

	if err := s.mirror.Start(s.shutdownCtx); err != nil {
		log.Printf("failed to start event mirror: %v", err)
	}
	s.bridge.StartWatcher(s.shutdownCtx)

	log.Printf("Server starting on port %s...", s.config.Port)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		log.Printf("error shutting down room hub: %v", err)
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
