package container

import (
	"context"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/signatory-approval-api/api/swagger"
	"github.com/noah-isme/signatory-approval-api/internal/approval"
	"github.com/noah-isme/signatory-approval-api/internal/handler"
	"github.com/noah-isme/signatory-approval-api/internal/middleware"
	"github.com/noah-isme/signatory-approval-api/pkg/cache"
	"github.com/noah-isme/signatory-approval-api/pkg/config"
	appErrors "github.com/noah-isme/signatory-approval-api/pkg/errors"
	"github.com/noah-isme/signatory-approval-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/signatory-approval-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/signatory-approval-api/pkg/middleware/requestid"
	"github.com/noah-isme/signatory-approval-api/pkg/response"
)

// Router builds the HTTP surface.
func (c *Container) Router() *gin.Engine {
	cfg := c.Config
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(c.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(c.Metrics))
	r.Use(middleware.WithResponseMeta())

	checks := map[string]handler.ReadinessCheck{
		"database": func(ctx context.Context) error { return c.DB.PingContext(ctx) },
	}
	if c.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return cache.Ping(ctx, c.Redis) }
	}
	ops := handler.NewMetricsHandler(c.Metrics, checks)
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	requests := handler.NewRequestHandler(c.Requests, c.Documents)
	reviews := handler.NewReviewHandler(c.Queues, c.Decisions, c.Documents)
	attachments := handler.NewAttachmentHandler(c.Attachments)
	notifications := handler.NewNotificationHandler(c.Notifications)
	ws := handler.NewWebSocketHandler(c.Hub, c.Auth, cfg.CORS.AllowedOrigins, c.Logger)
	decisionLimit := middleware.NewRateLimiter(cfg.Reviews.DecisionRPS, cfg.Reviews.DecisionBurst)

	api := r.Group(cfg.APIPrefix)
	api.GET("/attachments/download", attachments.Download)
	api.GET("/ws", ws.Serve)

	secured := api.Group("")
	secured.Use(middleware.JWT(c.Auth))

	officerOnly := middleware.RequireRoles(approval.RoleOfficer)
	req := secured.Group("/requests")
	req.POST("/funding", officerOnly, requests.CreateFunding)
	req.POST("/venue", officerOnly, requests.CreateVenue)
	req.GET("/mine", officerOnly, requests.ListMine)
	req.GET("/:id", requests.Get)
	req.GET("/:id/audit", requests.Trail)
	req.GET("/:id/document", requests.Document)
	req.POST("/:id/attachments", officerOnly, attachments.Upload)
	req.GET("/:id/attachments", attachments.List)

	rev := secured.Group("/reviews")
	rev.Use(middleware.RequireSignatory(c.Machine.Registry()))
	rev.GET("/queue", reviews.Queue)
	rev.GET("/history", reviews.History)
	rev.GET("/history/export", reviews.ExportHistory)
	rev.POST("/requests/:id/decision", decisionLimit.Middleware(), reviews.Decide)

	secured.GET("/notifications", notifications.List)

	r.NoRoute(func(ctx *gin.Context) {
		response.Error(ctx, appErrors.Clone(appErrors.ErrNotFound, "route not found"))
	})
	return r
}
