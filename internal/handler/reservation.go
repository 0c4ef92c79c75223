package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/angelshop/reservation-api/internal/middleware"
	"github.com/angelshop/reservation-api/internal/model"
	"github.com/angelshop/reservation-api/internal/repository"
	"github.com/angelshop/reservation-api/internal/service"
	"github.com/angelshop/reservation-api/internal/utils"
)

// ReservationHandler serves the customer-facing reservation endpoints.
// All routes require a customer session; the caller's email from the
// token is the only identity a reservation is ever tied to.
type ReservationHandler struct {
	Reservations *repository.ReservationRepo
	Lifecycle    *service.ReservationService
}

func NewReservationHandler(reservations *repository.ReservationRepo, lifecycle *service.ReservationService) *ReservationHandler {
	return &ReservationHandler{Reservations: reservations, Lifecycle: lifecycle}
}

// ----- DTOs -----

type createReservationReq struct {
	Items   []service.LineRequest `json:"items"`
	Name    string                `json:"name"`
	Phone   string                `json:"phone"`
	Address string                `json:"address"`
}

type reservationItemPart struct {
	ProductID  uint64 `json:"product_id"`
	SKU        string `json:"sku"`
	Qty        int    `json:"qty"`
	PriceCents int64  `json:"price_cents"`
	Name       string `json:"name"`
	Size       string `json:"size,omitempty"`
	Color      string `json:"color,omitempty"`
}

type reservationEventPart struct {
	Type string            `json:"type"`
	At   time.Time         `json:"at"`
	Meta map[string]string `json:"meta,omitempty"`
}

type reservationResp struct {
	Code          string                 `json:"code"`
	Status        string                 `json:"status"`
	Email         string                 `json:"email"`
	Name          string                 `json:"name,omitempty"`
	Phone         string                 `json:"phone,omitempty"`
	Address       string                 `json:"address,omitempty"`
	ExpiresAt     time.Time              `json:"expires_at"`
	ItemsCount    int                    `json:"items_count"`
	SubtotalCents int64                  `json:"subtotal_cents"`
	Items         []reservationItemPart  `json:"items"`
	Events        []reservationEventPart `json:"events,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

func toReservationResp(res *model.Reservation, withEvents bool) reservationResp {
	out := reservationResp{
		Code:          res.Code,
		Status:        string(res.Status),
		Email:         res.CustomerEmail,
		Name:          res.CustomerName,
		Phone:         res.CustomerPhone,
		Address:       res.CustomerAddress,
		ExpiresAt:     res.ExpiresAt,
		ItemsCount:    res.Totals.ItemsCount,
		SubtotalCents: res.Totals.SubtotalCents,
		Items:         make([]reservationItemPart, 0, len(res.Items)),
		CreatedAt:     res.CreatedAt,
	}
	for _, it := range res.Items {
		out.Items = append(out.Items, reservationItemPart{
			ProductID:  it.ProductID,
			SKU:        it.VariantSKU,
			Qty:        it.Qty,
			PriceCents: it.PriceSnapshotCents,
			Name:       it.NameSnapshot,
			Size:       it.Size,
			Color:      it.Color,
		})
	}
	if withEvents {
		out.Events = make([]reservationEventPart, 0, len(res.Events))
		for _, ev := range res.Events {
			out.Events = append(out.Events, reservationEventPart{Type: ev.Type, At: ev.At, Meta: ev.Meta})
		}
	}
	return out
}

// Create locks stock for every requested line and persists a new PENDING
// reservation owned by the session's email.
func (h *ReservationHandler) Create(c echo.Context) error {
	email := middleware.CallerEmail(c)
	if email == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session required"})
	}

	var req createReservationReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	res, err := h.Lifecycle.Create(ctx, email, req.Items, service.CustomerMeta{
		Name:    strings.TrimSpace(req.Name),
		Phone:   strings.TrimSpace(req.Phone),
		Address: strings.TrimSpace(req.Address),
	})
	if err != nil {
		return reservationError(c, err)
	}
	return c.JSON(http.StatusCreated, toReservationResp(res, false))
}

// ListMine returns all reservations owned by the session's email, newest
// first.
func (h *ReservationHandler) ListMine(c echo.Context) error {
	email := middleware.CallerEmail(c)
	if email == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	list, err := h.Reservations.ListByEmail(ctx, email)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not list reservations"})
	}
	items := make([]reservationResp, 0, len(list))
	for i := range list {
		items = append(items, toReservationResp(&list[i], false))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Get returns one reservation by code, including its audit trail.
// Customers only see their own reservations; admins see any.
func (h *ReservationHandler) Get(c echo.Context) error {
	code := strings.ToUpper(strings.TrimSpace(c.Param("code")))
	if code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, err := h.Reservations.FindByCode(ctx, code)
	if err != nil {
		return reservationError(c, err)
	}
	role, _ := c.Get("role").(string)
	if role != utils.RoleAdmin && res.CustomerEmail != middleware.CallerEmail(c) {
		// Same response as an unknown code so codes cannot be enumerated.
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	}
	return c.JSON(http.StatusOK, toReservationResp(res, true))
}

// Cancel cancels the caller's own reservation and returns its locked
// stock to the available pool.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	email := middleware.CallerEmail(c)
	code := strings.ToUpper(strings.TrimSpace(c.Param("code")))
	if code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	res, err := h.Lifecycle.Cancel(ctx, code, email)
	if err != nil {
		return reservationError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResp(res, false))
}

// reservationError maps domain errors to HTTP responses. Shared by the
// customer and admin reservation endpoints.
func reservationError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrEmptyItems), errors.Is(err, service.ErrInvalidQuantity):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrProductNotFound), errors.Is(err, repository.ErrVariantNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrReservationNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	case errors.Is(err, repository.ErrInsufficientStock):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrUnauthorized):
		// Indistinguishable from an unknown code on purpose.
		return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
	case errors.Is(err, service.ErrAlreadyTerminal), errors.Is(err, service.ErrInvalidTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
