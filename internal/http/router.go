package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/omnidesk/backend/internal/config"
	"github.com/omnidesk/backend/internal/directory"
	"github.com/omnidesk/backend/internal/events"
	"github.com/omnidesk/backend/internal/http/handlers"
	"github.com/omnidesk/backend/internal/http/middleware"
	"github.com/omnidesk/backend/internal/metrics"
	"github.com/omnidesk/backend/internal/routing"

	_ "github.com/omnidesk/backend/docs"
)

// Deps groups the services the HTTP layer is built on.
type Deps struct {
	Store     handlers.Pinger
	Engine    *routing.Engine
	Directory *directory.Directory
	Hub       *events.Hub
	Tokens    middleware.TokenVerifier
}

func Router(cfg config.Config, deps Deps, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(metrics.Middleware())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.ServiceKeyHeader, middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:     deps.Store,
		Engine:    deps.Engine,
		Directory: deps.Directory,
		Hub:       deps.Hub,
		Validator: validator.New(),
		Logger:    logger,
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", metrics.Handler())

	// EventSource cannot send headers, so the stream accepts ?token= and
	// runs without the request timeout.
	r.GET("/api/attendances/stream", middleware.Authenticate(deps.Tokens, true), h.Stream)

	api := r.Group("/api")
	api.Use(middleware.Authenticate(deps.Tokens, false), middleware.Timeout(cfg.RequestTimeout))
	{
		api.GET("/attendances", h.AttendancesList)
		api.GET("/attendances/stats", h.AttendancesStats)
		api.GET("/attendances/queue", h.SmartQueue)
		api.GET("/attendances/by-lead/:leadId", h.AttendanceByLead)
		api.GET("/attendances/:id", h.AttendanceDetails)
		api.GET("/attendances/:id/logs", h.AttendanceLogs)
		api.POST("/attendances/:id/claim", h.Claim)
		api.POST("/attendances/:id/transfer", h.Transfer)
		api.POST("/attendances/:id/close", h.Close)
		api.PATCH("/attendances/:id/priority", h.UpdatePriority)
		api.POST("/attendances/sync-leads", h.SyncLeads)
		api.POST("/attendances/reconcile", h.Reconcile)
		api.GET("/runs/latest", h.RunsLatest)

		api.GET("/departments", h.DepartmentsList)
		api.GET("/departments/mine", h.DepartmentsMine)
		api.POST("/departments", h.DepartmentCreate)
		api.GET("/departments/:id", h.DepartmentDetails)
		api.PUT("/departments/:id", h.DepartmentUpdate)
		api.DELETE("/departments/:id", h.DepartmentDelete)
		api.GET("/departments/:id/members", h.MembersList)
		api.POST("/departments/:id/members", h.MemberAdd)
		api.DELETE("/departments/:id/members/:userId", h.MemberRemove)
	}

	internal := r.Group("/internal")
	internal.Use(middleware.ServiceKey(cfg.ServiceKey), middleware.Timeout(cfg.RequestTimeout))
	{
		internal.POST("/messages/incoming", h.MessageIncoming)
		internal.POST("/messages/outgoing", h.MessageOutgoing)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
