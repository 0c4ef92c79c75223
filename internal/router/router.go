// Package router wires HTTP routes to their handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/angelshop/reservation-api/internal/config"
	"github.com/angelshop/reservation-api/internal/handler"
	"github.com/angelshop/reservation-api/internal/middleware"
	"github.com/angelshop/reservation-api/internal/utils"
)

// Handlers bundles everything RegisterRoutes mounts.
type Handlers struct {
	Health       *handler.HealthHandler
	Auth         *handler.AuthHandler
	Catalog      *handler.CatalogHandler
	Reservations *handler.ReservationHandler
	Admin        *handler.AdminHandler
	WS           *handler.WSHandler
}

// RegisterRoutes mounts the full API surface:
//
//	/healthz, /metrics          – operational endpoints, unauthenticated
//	/v1/auth/*                  – OTP and admin login
//	/v1/products/*              – public catalog, Redis cached
//	/v1/reservations/*          – customer session required
//	/v1/admin/*                 – admin session required
//	/v1/admin/ws                – websocket event stream (token query param)
//
// rdb may be nil; rate limiting and response caching then disable
// themselves and every route still works.
func RegisterRoutes(e *echo.Echo, cfg config.Config, h Handlers, rdb *redis.Client) {
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	e.GET("/healthz", h.Health.Check)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Session issuing. Rate limited: OTP requests trigger outbound mail.
	auth := e.Group("/v1/auth")
	auth.POST("/otp/request", h.Auth.RequestOtp, limiter)
	auth.POST("/otp/verify", h.Auth.VerifyOtp, limiter)
	auth.POST("/admin/login", h.Auth.AdminLogin, limiter)

	// Public catalog, served through the short-TTL response cache.
	e.GET("/v1/products", h.Catalog.List, cache)
	e.GET("/v1/products/:id", h.Catalog.Get, cache)

	// Customer reservations. Admins may also read single reservations
	// through the same group by presenting a customer-style token; staff
	// tooling instead uses /v1/admin below.
	res := e.Group("/v1/reservations")
	res.Use(middleware.JWTAuth(cfg.JWTOtpSecret))
	res.Use(middleware.RequireRole(utils.RoleCustomer))
	res.POST("", h.Reservations.Create, limiter)
	res.GET("", h.Reservations.ListMine)
	res.GET("/:code", h.Reservations.Get)
	res.POST("/:code/cancel", h.Reservations.Cancel)

	// Staff surface.
	admin := e.Group("/v1/admin")
	admin.Use(middleware.JWTAuth(cfg.JWTAdminSecret))
	admin.Use(middleware.RequireRole(utils.RoleAdmin))
	admin.GET("/products", h.Admin.ListProducts)
	admin.POST("/products", h.Admin.CreateProduct)
	admin.GET("/products/:id", h.Admin.GetProduct)
	admin.PUT("/products/:id", h.Admin.UpdateProduct)
	admin.DELETE("/products/:id", h.Admin.DeleteProduct)
	admin.PATCH("/products/:id/variants/:sku/stock", h.Admin.AdjustStock)
	admin.GET("/reservations", h.Admin.ListReservations)
	admin.GET("/reservations/:code", h.Reservations.Get)
	admin.PATCH("/reservations/:code/status", h.Admin.SetReservationStatus)
	admin.GET("/reports/daily", h.Admin.DailyReport)

	// Websocket handshake authenticates via query token, not headers.
	e.GET("/v1/admin/ws", h.WS.Serve)
}
