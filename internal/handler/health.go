// Package handler contains the Echo HTTP handlers. Handlers bind and
// validate request bodies, call into repositories and services, and map
// domain errors to HTTP status codes.
package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthHandler reports process and database liveness.
type HealthHandler struct {
	DB *sql.DB
}

func NewHealthHandler(db *sql.DB) *HealthHandler { return &HealthHandler{DB: db} }

// Check responds 200 when the database is reachable, 503 otherwise.
func (h *HealthHandler) Check(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	if err := h.DB.PingContext(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded", "error": "database unreachable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
