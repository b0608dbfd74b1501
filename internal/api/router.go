package api

import (
	"github.com/froberg/shopsync/internal/api/handler"
	"github.com/froberg/shopsync/internal/api/middleware"
	"github.com/froberg/shopsync/internal/config"
	"github.com/froberg/shopsync/internal/repository"
	"github.com/froberg/shopsync/internal/service"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	db *gorm.DB,
	scheduler *service.Scheduler,
	seeder *service.SeederService,
	aggregation *service.AggregationService,
	jobs *repository.JobRepository,
	aggregates *repository.AggregateRepository,
	cfg *config.Config,
) *gin.Engine {
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler(db)
	syncHandler := handler.NewSyncHandler(scheduler, seeder)
	jobHandler := handler.NewJobHandler(jobs)
	aggregateHandler := handler.NewAggregateHandler(aggregation, aggregates)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Sync orchestration
		v1.POST("/sync/dispatch", syncHandler.Dispatch)
		v1.POST("/sync/backfill", syncHandler.Backfill)

		// Job ledger
		v1.GET("/jobs", jobHandler.List)
		v1.GET("/jobs/stats", jobHandler.Stats)
		v1.GET("/jobs/:id", jobHandler.Get)

		// Daily aggregates
		v1.POST("/aggregate/run", aggregateHandler.Run)
		v1.GET("/aggregates", aggregateHandler.Get)
	}

	return r
}
