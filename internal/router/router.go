// Package router wires the HTTP surface: which handler answers which path
// and which middleware guards it.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/lab-inventory/internal/config"
	"github.com/iliyamo/lab-inventory/internal/handler"
	"github.com/iliyamo/lab-inventory/internal/middleware"
)

// Handlers bundles every handler the router mounts.
type Handlers struct {
	Auth    *handler.AuthHandler
	Device  *handler.DeviceHandler
	Loan    *handler.LoanHandler
	Catalog *handler.CatalogHandler
	User    *handler.UserHandler
}

// Register mounts all routes on the Echo instance.
//
// Layout:
//
//	GET  /healthz             liveness probe, unauthenticated
//	POST /v1/auth/token       login (rate limited; fronts the directory)
//	GET  /v1/auth/me          caller identity
//	GET  /v1/devices          device listing (response cached)
//	CRUD /v1/devices          manager only
//	POST /v1/loans/...        loan state machine
//	GET  /v1/catalog/...      reference data
//	/v1/users                 admin only
func Register(e *echo.Echo, cfg config.Config, rdb *redis.Client, h Handlers) {
	e.GET("/healthz", handler.Health)

	// Login fronts the directory, so it alone sits behind the token bucket.
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	e.POST("/v1/auth/token", h.Auth.Login, limiter)

	v1 := e.Group("/v1")
	v1.Use(middleware.JWTAuth(cfg))

	v1.GET("/auth/me", h.Auth.Me)

	// The listing is the hottest endpoint (every scanner client polls it);
	// a short-TTL cache absorbs the bursts.
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	v1.GET("/devices", h.Device.List, cache)
	v1.GET("/devices/:id", h.Device.Get)

	manage := middleware.RequireRole("gestionnaire", "admin")
	v1.POST("/devices", h.Device.Create, manage)
	v1.PATCH("/devices/:id", h.Device.Update, manage)
	v1.DELETE("/devices/:id", h.Device.Delete, manage)

	v1.GET("/loans", h.Loan.List)
	v1.POST("/loans/loan", h.Loan.Loan)
	v1.POST("/loans/return", h.Loan.Return)
	v1.POST("/loans/scan", h.Loan.Scan)

	v1.GET("/catalog/types", h.Catalog.ListTypes)
	v1.POST("/catalog/types", h.Catalog.CreateType, manage)
	v1.GET("/catalog/statuses", h.Catalog.ListStatuses)
	v1.POST("/catalog/statuses", h.Catalog.CreateStatus, manage)

	admin := v1.Group("/users", middleware.RequireRole("admin"))
	admin.GET("", h.User.List)
	admin.PUT("/:username", h.User.Put)
}
