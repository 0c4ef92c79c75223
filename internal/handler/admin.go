package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/angelshop/reservation-api/internal/model"
	"github.com/angelshop/reservation-api/internal/repository"
	"github.com/angelshop/reservation-api/internal/service"
)

// AdminHandler serves the staff endpoints: product management, manual
// stock corrections, reservation fulfilment and reporting. All routes
// are guarded by the admin JWT middleware.
type AdminHandler struct {
	Products     *repository.ProductRepo
	Variants     *repository.VariantRepo
	Reservations *repository.ReservationRepo
	Lifecycle    *service.ReservationService
	Bus          service.EventBus
	Log          zerolog.Logger
}

func NewAdminHandler(products *repository.ProductRepo, variants *repository.VariantRepo, reservations *repository.ReservationRepo, lifecycle *service.ReservationService, bus service.EventBus, log zerolog.Logger) *AdminHandler {
	if bus == nil {
		bus = service.NopEventBus{}
	}
	return &AdminHandler{
		Products:     products,
		Variants:     variants,
		Reservations: reservations,
		Lifecycle:    lifecycle,
		Bus:          bus,
		Log:          log,
	}
}

// ----- DTOs -----

type variantReq struct {
	SKU               string `json:"sku"`
	Size              string `json:"size"`
	Color             string `json:"color"`
	InitialStock      int    `json:"initial_stock"`
	LowStockThreshold int    `json:"low_stock_threshold"`
}

type productReq struct {
	Name        string       `json:"name"`
	Slug        string       `json:"slug"`
	Description *string      `json:"description"`
	Category    *string      `json:"category"`
	PriceCents  int64        `json:"price_cents"`
	Images      []string     `json:"images"`
	IsActive    *bool        `json:"is_active"`
	Variants    []variantReq `json:"variants"`
}

type adminVariant struct {
	SKU               string `json:"sku"`
	Size              string `json:"size,omitempty"`
	Color             string `json:"color,omitempty"`
	StockAvailable    int    `json:"stock_available"`
	StockLocked       int    `json:"stock_locked"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	LowStock          bool   `json:"low_stock"`
}

type adminProduct struct {
	ID          uint64         `json:"id"`
	Name        string         `json:"name"`
	Slug        string         `json:"slug"`
	Description string         `json:"description,omitempty"`
	Category    string         `json:"category,omitempty"`
	PriceCents  int64          `json:"price_cents"`
	Images      []string       `json:"images"`
	IsActive    bool           `json:"is_active"`
	Variants    []adminVariant `json:"variants"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type stockAdjustReq struct {
	Delta int `json:"delta"`
}

type setStatusReq struct {
	Status string `json:"status"`
}

func toAdminProduct(p *model.Product) adminProduct {
	out := adminProduct{
		ID:         p.ID,
		Name:       p.Name,
		Slug:       p.Slug,
		PriceCents: p.PriceCents,
		Images:     p.Images,
		IsActive:   p.IsActive,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
	if out.Images == nil {
		out.Images = []string{}
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Category != nil {
		out.Category = *p.Category
	}
	out.Variants = make([]adminVariant, 0, len(p.Variants))
	for _, v := range p.Variants {
		out.Variants = append(out.Variants, toAdminVariant(v))
	}
	return out
}

func toAdminVariant(v model.Variant) adminVariant {
	return adminVariant{
		SKU:               v.SKU,
		Size:              v.Size,
		Color:             v.Color,
		StockAvailable:    v.StockAvailable,
		StockLocked:       v.StockLocked,
		LowStockThreshold: v.LowStockThreshold,
		LowStock:          v.LowStock(),
	}
}

func (req *productReq) toModel() (*model.Product, error) {
	name := strings.TrimSpace(req.Name)
	slug := strings.TrimSpace(req.Slug)
	if name == "" || slug == "" {
		return nil, errors.New("name and slug required")
	}
	if req.PriceCents < 0 {
		return nil, errors.New("price must not be negative")
	}
	p := &model.Product{
		Name:        name,
		Slug:        slug,
		Description: req.Description,
		Category:    req.Category,
		PriceCents:  req.PriceCents,
		Images:      req.Images,
		IsActive:    true,
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	seen := make(map[string]bool, len(req.Variants))
	for _, v := range req.Variants {
		sku := strings.TrimSpace(v.SKU)
		if sku == "" {
			return nil, errors.New("variant sku required")
		}
		if seen[sku] {
			return nil, errors.New("duplicate variant sku " + sku)
		}
		seen[sku] = true
		if v.InitialStock < 0 || v.LowStockThreshold < 0 {
			return nil, errors.New("variant stock values must not be negative")
		}
		p.Variants = append(p.Variants, model.Variant{
			SKU:               sku,
			Size:              strings.TrimSpace(v.Size),
			Color:             strings.TrimSpace(v.Color),
			StockAvailable:    v.InitialStock,
			LowStockThreshold: v.LowStockThreshold,
		})
	}
	return p, nil
}

// ----- Products -----

// CreateProduct inserts a new product with its variants.
func (h *AdminHandler) CreateProduct(c echo.Context) error {
	var req productReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	p, err := req.toModel()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Products.Create(ctx, p); err != nil {
		h.Log.Error().Err(err).Str("slug", p.Slug).Msg("create product failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create product"})
	}
	return c.JSON(http.StatusCreated, toAdminProduct(p))
}

// UpdateProduct rewrites product fields and upserts variants. Stock
// counters are never touched here; only AdjustStock may move them.
func (h *AdminHandler) UpdateProduct(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}
	var req productReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	p, err := req.toModel()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	p.ID = id

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Products.Update(ctx, p); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
		}
		h.Log.Error().Err(err).Uint64("product_id", id).Msg("update product failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not update product"})
	}

	fresh, err := h.Products.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load product"})
	}
	return c.JSON(http.StatusOK, toAdminProduct(fresh))
}

// GetProduct returns a product with full stock counters, active or not.
func (h *AdminHandler) GetProduct(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	p, err := h.Products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load product"})
	}
	return c.JSON(http.StatusOK, toAdminProduct(p))
}

// ListProducts returns the full catalog, inactive products included.
func (h *AdminHandler) ListProducts(c echo.Context) error {
	f := repository.ProductFilter{
		Category: c.QueryParam("category"),
		Query:    c.QueryParam("q"),
		Page:     queryInt(c, "page", 1),
		Limit:    queryInt(c, "limit", 50),
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	products, total, err := h.Products.List(ctx, f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not list products"})
	}
	items := make([]adminProduct, 0, len(products))
	for i := range products {
		items = append(items, toAdminProduct(&products[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "total": total, "page": f.Page, "limit": f.Limit})
}

// DeleteProduct removes a product and its variants.
func (h *AdminHandler) DeleteProduct(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Products.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrProductNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not delete product"})
	}
	return c.NoContent(http.StatusNoContent)
}

// ----- Stock -----

// AdjustStock applies a manual correction to a variant's available pool.
// Negative deltas clamp at zero; the locked pool is never touched, so
// active reservations keep their hold.
func (h *AdminHandler) AdjustStock(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}
	sku := strings.TrimSpace(c.Param("sku"))
	if sku == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "sku required"})
	}
	var req stockAdjustReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Delta == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "delta must not be zero"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	v, err := h.Variants.AdjustAvailable(ctx, id, sku, req.Delta)
	if err != nil {
		if errors.Is(err, repository.ErrVariantNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "variant not found"})
		}
		h.Log.Error().Err(err).Uint64("product_id", id).Str("sku", sku).Msg("stock adjust failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not adjust stock"})
	}

	h.Log.Info().
		Uint64("product_id", id).
		Str("sku", sku).
		Int("delta", req.Delta).
		Int("stock_available", v.StockAvailable).
		Msg("stock adjusted")
	if v.LowStock() {
		h.Log.Warn().Uint64("product_id", id).Str("sku", sku).
			Int("stock_available", v.StockAvailable).
			Int("threshold", v.LowStockThreshold).
			Msg("variant at or below low-stock threshold")
	}
	h.Bus.Publish(service.EventStockUpdated, service.StockUpdatePayload(v.ProductID, v.SKU))

	return c.JSON(http.StatusOK, toAdminVariant(*v))
}

// ----- Reservations -----

// ListReservations returns reservations matching the optional status,
// email and date-range filters.
func (h *AdminHandler) ListReservations(c echo.Context) error {
	f := repository.ReservationFilter{
		Email: strings.ToLower(strings.TrimSpace(c.QueryParam("email"))),
	}
	if s := strings.ToUpper(strings.TrimSpace(c.QueryParam("status"))); s != "" {
		st := model.Status(s)
		if !st.Valid() {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown status"})
		}
		f.Status = st
	}
	var err error
	if f.From, err = queryTime(c, "from"); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid from date"})
	}
	if f.To, err = queryTime(c, "to"); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid to date"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	list, err := h.Reservations.ListForAdmin(ctx, f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not list reservations"})
	}
	items := make([]reservationResp, 0, len(list))
	for i := range list {
		items = append(items, toReservationResp(&list[i], false))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// SetReservationStatus advances a reservation through the fulfilment
// flow (confirm, hand to delivery, complete) or cancels it on the
// customer's behalf.
func (h *AdminHandler) SetReservationStatus(c echo.Context) error {
	code := strings.ToUpper(strings.TrimSpace(c.Param("code")))
	if code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code required"})
	}
	var req setStatusReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	next := model.Status(strings.ToUpper(strings.TrimSpace(req.Status)))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	res, err := h.Lifecycle.SetStatus(ctx, code, next)
	if err != nil {
		return reservationError(c, err)
	}
	return c.JSON(http.StatusOK, toReservationResp(res, true))
}

// ----- Reports -----

// DailyReport aggregates reservation counts and value per creation day
// within the optional from/to window.
func (h *AdminHandler) DailyReport(c echo.Context) error {
	from, err := queryTime(c, "from")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid from date"})
	}
	to, err := queryTime(c, "to")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid to date"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	rows, err := h.Reservations.DailySummary(ctx, from, to)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not build report"})
	}
	return c.JSON(http.StatusOK, echo.Map{"days": rows})
}

// queryTime parses an optional RFC 3339 or YYYY-MM-DD query parameter.
func queryTime(c echo.Context, name string) (time.Time, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
