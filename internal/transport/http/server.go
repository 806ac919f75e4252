package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"docuquery/internal/bootstrap"
	mysqlClient "docuquery/internal/platform/mysql"
	rabbitmqClient "docuquery/internal/platform/rabbitmq"
	redisClient "docuquery/internal/platform/redis"
	"docuquery/internal/transport/http/handler"
	"docuquery/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), app.Metrics.Middleware())

	healthHandler := handler.NewHealthHandler(app.Config.App.Name, app.Config.App.Env, app.StartedAt, probes(app))
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", app.Metrics.Handler())

	log := app.Log.WithField("component", "http")
	authHandler := handler.NewAuthHandler(app.Auth, log)
	documentHandler := handler.NewDocumentHandler(app.Documents, log)
	queryHandler := handler.NewQueryHandler(app.Queries, app.Usage, log)
	usageHandler := handler.NewUsageHandler(app.Usage, log)
	authenticate := middleware.Authenticate(app.Auth, log)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/api-key", authenticate, authHandler.RotateAPIKey)
	authGroup.GET("/me", authenticate, authHandler.Me)

	docGroup := v1.Group("/documents")
	docGroup.Use(authenticate)
	docGroup.POST("/upload", documentHandler.Upload)
	docGroup.GET("", documentHandler.List)
	docGroup.GET("/:id", documentHandler.Get)
	docGroup.DELETE("/:id", documentHandler.Delete)
	docGroup.POST("/:id/reprocess", documentHandler.Reprocess)

	v1.POST("/query", authenticate, middleware.RateLimit(app.Limiter, log), queryHandler.Query)
	v1.GET("/usage", authenticate, usageHandler.Get)

	return router
}

func probes(app *bootstrap.App) map[string]handler.Probe {
	p := map[string]handler.Probe{
		"mysql": func(ctx context.Context) error {
			if app.MySQL == nil {
				return errors.New("not configured")
			}
			return mysqlClient.Ping(ctx, app.MySQL)
		},
		"redis": func(ctx context.Context) error {
			if app.Redis == nil {
				return errors.New("not configured")
			}
			return redisClient.Ping(ctx, app.Redis)
		},
		"vector_index": func(ctx context.Context) error {
			if app.VectorIndex == nil {
				return errors.New("not configured")
			}
			return app.VectorIndex.Ping(ctx)
		},
	}
	if app.MQConn != nil {
		p["rabbitmq"] = func(ctx context.Context) error {
			return rabbitmqClient.Ping(ctx, app.MQConn)
		}
	}
	return p
}
