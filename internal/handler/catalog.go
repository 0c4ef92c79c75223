package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/angelshop/reservation-api/internal/model"
	"github.com/angelshop/reservation-api/internal/repository"
)

// CatalogHandler serves the public storefront endpoints. Only active
// products are visible and variant stock is reported as a coarse
// availability badge, never as raw counters.
type CatalogHandler struct {
	Products *repository.ProductRepo
}

func NewCatalogHandler(products *repository.ProductRepo) *CatalogHandler {
	return &CatalogHandler{Products: products}
}

// ----- DTOs -----

type publicVariant struct {
	SKU          string `json:"sku"`
	Size         string `json:"size,omitempty"`
	Color        string `json:"color,omitempty"`
	Availability string `json:"availability"` // in_stock, low_stock, out_of_stock
}

type publicProduct struct {
	ID          uint64          `json:"id"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	PriceCents  int64           `json:"price_cents"`
	Images      []string        `json:"images"`
	Variants    []publicVariant `json:"variants"`
}

func toPublicProduct(p *model.Product) publicProduct {
	out := publicProduct{
		ID:         p.ID,
		Name:       p.Name,
		Slug:       p.Slug,
		PriceCents: p.PriceCents,
		Images:     p.Images,
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
	out.Variants = make([]publicVariant, 0, len(p.Variants))
	for _, v := range p.Variants {
		out.Variants = append(out.Variants, publicVariant{
			SKU:          v.SKU,
			Size:         v.Size,
			Color:        v.Color,
			Availability: availability(v),
		})
	}
	return out
}

func availability(v model.Variant) string {
	switch {
	case v.StockAvailable <= 0:
		return "out_of_stock"
	case v.LowStock():
		return "low_stock"
	default:
		return "in_stock"
	}
}

// List returns a paginated, filterable slice of the active catalog.
// Supported query params: category, size, color, min_price, max_price,
// q (name search), page, limit.
func (h *CatalogHandler) List(c echo.Context) error {
	f := repository.ProductFilter{
		Category:   c.QueryParam("category"),
		Size:       c.QueryParam("size"),
		Color:      c.QueryParam("color"),
		Query:      c.QueryParam("q"),
		OnlyActive: true,
		Page:       queryInt(c, "page", 1),
		Limit:      queryInt(c, "limit", 20),
	}
	f.MinPrice = int64(queryInt(c, "min_price", 0))
	f.MaxPrice = int64(queryInt(c, "max_price", 0))

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	products, total, err := h.Products.List(ctx, f)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "catalog unavailable"})
	}

	items := make([]publicProduct, 0, len(products))
	for i := range products {
		items = append(items, toPublicProduct(&products[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items": items,
		"total": total,
		"page":  f.Page,
		"limit": f.Limit,
	})
}

// Get returns one active product by ID.
func (h *CatalogHandler) Get(c echo.Context) error {
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
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "catalog unavailable"})
	}
	if !p.IsActive {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
	}
	return c.JSON(http.StatusOK, toPublicProduct(p))
}

func queryInt(c echo.Context, name string, def int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
