package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"storebridge/internal/api/handlers"
	"storebridge/internal/api/middleware"
	"storebridge/internal/config"
	"storebridge/internal/database"
	"storebridge/internal/logger"
	"storebridge/internal/sync"
)

type Server struct {
	config *config.Config
	logger *logger.Logger
	db     *database.Database
	router *gin.Engine
	server *http.Server
}

func New(cfg *config.Config, logger *logger.Logger, db *database.Database, engine *sync.Engine, dispatcher *sync.Dispatcher) *Server {
	// Set Gin mode
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS())

	// Initialize handlers
	productHandler := handlers.NewProductHandler(db.DB, logger)
	categoryHandler := handlers.NewCategoryHandler(db.DB, logger)
	syncHandler := handlers.NewSyncHandler(db.DB, engine, logger)
	webhookHandler := handlers.NewWebhookHandler(dispatcher, cfg, logger)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Routes
	v1 := router.Group("/api/v1")
	{
		// Read API for the storefront
		v1.GET("/categories", categoryHandler.List)
		v1.GET("/products", productHandler.List)
		v1.GET("/products/:slug", productHandler.GetBySlug)

		// Sync triggers
		v1.POST("/sync", syncHandler.Trigger)
		v1.GET("/sync/runs", syncHandler.ListRuns)

		// ERP webhooks
		v1.POST("/webhooks/erp", webhookHandler.Receive)
	}

	return &Server{
		config: cfg,
		logger: logger,
		db:     db,
		router: router,
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%s", s.config.APIHost, s.config.APIPort)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server on " + addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	return s.server.Shutdown(ctx)
}

// GetRouter exposes the router for tests.
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
