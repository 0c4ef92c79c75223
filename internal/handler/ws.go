package handler

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/angelshop/reservation-api/internal/utils"
	"github.com/angelshop/reservation-api/internal/ws"
)

// WSHandler upgrades admin dashboard connections to websockets fed by
// the event hub. Browsers cannot set an Authorization header on the
// websocket handshake, so the admin token is passed as a query
// parameter instead.
type WSHandler struct {
	Hub    *ws.Hub
	Secret string
}

func NewWSHandler(hub *ws.Hub, adminSecret string) *WSHandler {
	return &WSHandler{Hub: hub, Secret: adminSecret}
}

// Serve validates the token and attaches the connection to the hub.
func (h *WSHandler) Serve(c echo.Context) error {
	raw := c.QueryParam("token")
	if raw == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token required"})
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, echo.ErrUnauthorized
		}
		return []byte(h.Secret), nil
	})
	if err != nil || !tok.Valid {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || claims["role"] != utils.RoleAdmin {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return h.Hub.ServeWS(c.Response(), c.Request())
}
