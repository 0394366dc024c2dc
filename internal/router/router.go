// Package router binds handlers to the HTTP surface.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-class-api/internal/handler"
	"github.com/noah-isme/studio-class-api/internal/middleware"
	"github.com/noah-isme/studio-class-api/internal/models"
	"github.com/noah-isme/studio-class-api/internal/service"
	"github.com/noah-isme/studio-class-api/pkg/config"
	"github.com/noah-isme/studio-class-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/studio-class-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/studio-class-api/pkg/middleware/requestid"
)

// Handlers groups every HTTP handler the API exposes.
type Handlers struct {
	Sessions *handler.SessionHandler
	Series   *handler.SeriesHandler
	Bookings *handler.BookingHandler
	Waitlist *handler.WaitlistHandler
	Reports  *handler.ReportHandler
	Settings *handler.SettingsHandler
	Metrics  *handler.MetricsHandler
}

// Deps are the cross-cutting collaborators used by middleware.
type Deps struct {
	Config  *config.Config
	Logger  *zap.Logger
	Auth    middleware.TokenValidator
	Metrics *service.MetricsService
	Redis   *redis.Client
}

// New builds the gin engine with the global middleware chain and every route.
func New(deps Deps, h Handlers) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(deps.Config.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)
	if deps.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	Register(r.Group(deps.Config.APIPrefix), deps, h)
	return r
}

// Register mounts the authenticated API on group.
func Register(group *gin.RouterGroup, deps Deps, h Handlers) {
	operators := middleware.RequireRoles(models.RoleOwner, models.RoleStaff)
	owners := middleware.RequireRoles(models.RoleOwner)
	anyRole := middleware.RequireRoles(models.RoleOwner, models.RoleStaff, models.RoleClient)
	limited := middleware.RateLimit(deps.Config.RateLimit, deps.Redis, deps.Logger)

	api := group.Group("")
	api.Use(middleware.JWT(deps.Auth))

	sessions := api.Group("/sessions")
	sessions.GET("", anyRole, h.Sessions.List)
	sessions.POST("", operators, h.Sessions.Create)
	sessions.POST("/recurring", operators, h.Sessions.GenerateRecurring)
	sessions.GET("/:id", anyRole, h.Sessions.Get)
	sessions.PATCH("/:id", operators, h.Sessions.Update)
	sessions.DELETE("/:id", operators, h.Sessions.Delete)
	sessions.POST("/:id/bookings", anyRole, limited, h.Bookings.Book)
	sessions.GET("/:id/bookings", operators, h.Bookings.ListBySession)
	sessions.POST("/:id/waitlist", anyRole, limited, h.Waitlist.Join)
	sessions.GET("/:id/waitlist", operators, h.Waitlist.List)
	sessions.POST("/:id/waitlist/promote", operators, h.Waitlist.PromoteNext)

	series := api.Group("/series", operators)
	series.PATCH("/:groupId", h.Series.Update)
	series.DELETE("/:groupId", h.Series.Delete)

	bookings := api.Group("/bookings")
	bookings.POST("/:id/cancel", anyRole, limited, h.Bookings.Cancel)
	bookings.POST("/:id/outcome", operators, h.Bookings.MarkOutcome)

	api.GET("/clients/:id/bookings", middleware.RBAC(string(models.RoleOwner), string(models.RoleStaff), middleware.SelfAccess), h.Bookings.ListByClient)

	waitlist := api.Group("/waitlist")
	waitlist.POST("/:id/confirm", anyRole, limited, h.Waitlist.Confirm)
	waitlist.POST("/:id/expire", operators, h.Waitlist.Expire)
	waitlist.DELETE("/:id", anyRole, h.Waitlist.Leave)

	api.GET("/reports/attendance", operators, h.Reports.Attendance)

	api.GET("/studios/:id/settings", operators, h.Settings.Get)
	api.PUT("/studios/:id/settings", owners, h.Settings.Update)

	api.GET("/system/metrics", owners, h.Metrics.System)
}
