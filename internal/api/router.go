package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/timmy/textrun/internal/api/handler"
	"github.com/timmy/textrun/internal/api/middleware"
	"github.com/timmy/textrun/internal/config"
	"github.com/timmy/textrun/internal/logger"
	"github.com/timmy/textrun/internal/service"
)

// Deps bundles the services the HTTP surface is built on.
type Deps struct {
	Extraction *service.ExtractionService
	Index      *service.IndexService
	Health     handler.Pinger
	Logger     *logger.Logger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps Deps, cfg *config.Config) *gin.Engine {
	// Set Gin mode
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	}))

	// Create handlers
	healthHandler := handler.NewHealthHandler(deps.Health)
	jobHandler := handler.NewJobHandler(deps.Extraction)
	searchHandler := handler.NewSearchHandler(deps.Index)
	eventsHandler := handler.NewEventsHandler(deps.Extraction.Events())

	// Health check
	r.GET("/health", healthHandler.Health)

	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.Handler()))
	}

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Jobs
		v1.POST("/jobs", jobHandler.Start)
		v1.GET("/jobs", jobHandler.ListJobs)
		v1.POST("/jobs/pause", jobHandler.Pause)
		v1.POST("/jobs/resume", jobHandler.Resume)
		v1.POST("/jobs/cancel", jobHandler.Cancel)
		v1.GET("/jobs/progress", jobHandler.Progress)
		v1.GET("/jobs/:source_id", jobHandler.Progress)

		// Runs
		v1.PATCH("/jobs/:source_id/runs/:frame_label", jobHandler.EditRun)
		v1.GET("/jobs/:source_id/export", jobHandler.Export)
		v1.POST("/jobs/:source_id/publish", jobHandler.Publish)
		v1.POST("/jobs/:source_id/index", searchHandler.IndexRuns)

		// Search
		v1.GET("/search", searchHandler.SearchGet)
		v1.POST("/search", searchHandler.Search)

		// Events
		v1.GET("/events", eventsHandler.List)
	}

	return r
}
