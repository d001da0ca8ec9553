package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"performa-system/config"
	"performa-system/internal/auditlog"
	"performa-system/internal/database"
	"performa-system/internal/gateway/handlers"
	"performa-system/internal/gateway/middleware"
	"performa-system/internal/identity"
	"performa-system/internal/kpi"
	"performa-system/internal/scoring"
)

func main() {
	cfg := config.LoadConfig()
	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	db, err := database.NewConnection(cfg.DB.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	redisClient := config.NewRedisClient(cfg.Redis)

	audit := auditlog.NewService(db)
	resolver := identity.NewResolver(db, redisClient)
	kpiService := kpi.NewService(db, audit)
	scoringService := scoring.NewService(db, redisClient, audit)

	kpiHandler := handlers.NewKPIHTTPHandler(kpiService, audit, resolver)
	scoringHandler := handlers.NewScoringHTTPHandler(scoringService, resolver)

	// Daily retention sweep over expired audit log rows.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go audit.RunPurgeSweep(sweepCtx, 24*time.Hour)

	r := gin.Default()
	r.Use(middleware.CORS())
	r.Use(middleware.RateLimit())

	protected := r.Group("/")
	protected.Use(middleware.JWTAuth([]byte(cfg.Auth.JWTSecret)))
	{
		kpiGroup := protected.Group("/kpi")
		{
			kpiGroup.POST("/create", kpiHandler.Create)
			kpiGroup.PUT("/:id", kpiHandler.Update)
			kpiGroup.DELETE("/:id", kpiHandler.Delete)
			kpiGroup.GET("/available", kpiHandler.AvailableKras)
			kpiGroup.GET("/my", kpiHandler.MyKpis)
			kpiGroup.GET("/department/:dept", kpiHandler.DepartmentKpis)
			kpiGroup.GET("/logs", kpiHandler.Logs)
		}

		scoringGroup := protected.Group("/scoring")
		{
			scoringGroup.POST("/add", scoringHandler.AddScore)
			scoringGroup.GET("/kpi/:kpiId", scoringHandler.KpiScore)
			scoringGroup.GET("/kra/:kraId", scoringHandler.KraScores)
			scoringGroup.GET("/kra/:kraId/aggregate", scoringHandler.KraAggregate)
		}
	}

	log.Printf("Server starting on port %s", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
