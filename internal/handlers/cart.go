package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zolsal/price-service/internal/compare"
	"github.com/zolsal/price-service/internal/export"
	"github.com/zolsal/price-service/internal/types"
)

// xlsxContentType is the MIME type for .xlsx workbooks.
const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Comparer is the slice of the comparator the cart endpoints use.
type Comparer interface {
	Compare(ctx context.Context, city string, items []types.CartItem) (*compare.CartComparison, error)
}

// CartItemRequest represents one cart line in a comparison request
type CartItemRequest struct {
	Barcode  string `json:"barcode"`
	Quantity int    `json:"quantity"`
	Name     string `json:"name"`
}

// CompareCartRequest represents the body for cart comparison
type CompareCartRequest struct {
	City  string            `json:"city"`
	Items []CartItemRequest `json:"items"`
}

// CartHandler serves ad-hoc cart comparison and XLSX export.
type CartHandler struct {
	comparator Comparer
}

// NewCartHandler creates a cart handler around the comparator.
func NewCartHandler(comparator Comparer) *CartHandler {
	return &CartHandler{comparator: comparator}
}

// CompareCart compares a shopping cart across every branch in a city
// @Summary Compare cart
// @Description Prices the cart at every branch in the city and ranks branches by availability, then total price
// @Tags cart
// @Accept json
// @Produce json
// @Param cart body CompareCartRequest true "City and cart items"
// @Success 200 {object} compare.CartComparison
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/cart/compare [post]
func (h *CartHandler) CompareCart(c *gin.Context) {
	city, items, ok := bindCart(c)
	if !ok {
		return
	}

	result, err := h.comparator.Compare(c.Request.Context(), city, items)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "comparison_failed", "failed to compare cart")
		return
	}

	c.JSON(http.StatusOK, result)
}

// ExportComparison compares a cart and returns the result as an XLSX workbook
// @Summary Export cart comparison
// @Description Runs the same comparison as /cart/compare and streams the result as a spreadsheet
// @Tags cart
// @Accept json
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param cart body CompareCartRequest true "City and cart items"
// @Success 200 {file} binary
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/cart/compare/export [post]
func (h *CartHandler) ExportComparison(c *gin.Context) {
	city, items, ok := bindCart(c)
	if !ok {
		return
	}

	result, err := h.comparator.Compare(c.Request.Context(), city, items)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "comparison_failed", "failed to compare cart")
		return
	}

	book, err := export.Comparison(result)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "export_failed", "failed to build workbook")
		return
	}

	c.Header("Content-Disposition", `attachment; filename="cart-comparison.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, book)
}

// bindCart parses and validates a comparison request body. On failure it
// writes the error response and returns ok=false.
func bindCart(c *gin.Context) (string, []types.CartItem, bool) {
	var req CompareCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return "", nil, false
	}

	items, ok := validateCart(c, req.City, req.Items)
	if !ok {
		return "", nil, false
	}
	return strings.TrimSpace(req.City), items, true
}

// validateCart applies the request-boundary cart rules: city present, at
// least one item, every barcode non-empty, every quantity positive.
func validateCart(c *gin.Context, city string, items []CartItemRequest) ([]types.CartItem, bool) {
	if strings.TrimSpace(city) == "" {
		abortError(c, http.StatusBadRequest, "missing_city", "city is required")
		return nil, false
	}
	if len(items) == 0 {
		abortError(c, http.StatusBadRequest, "empty_cart", "items must contain at least one entry")
		return nil, false
	}

	cart := make([]types.CartItem, 0, len(items))
	for _, item := range items {
		if strings.TrimSpace(item.Barcode) == "" {
			abortError(c, http.StatusBadRequest, "invalid_barcode", "every item needs a barcode")
			return nil, false
		}
		if item.Quantity < 1 {
			abortError(c, http.StatusBadRequest, "invalid_quantity", "quantity must be at least 1")
			return nil, false
		}
		cart = append(cart, types.CartItem{
			Barcode:  strings.TrimSpace(item.Barcode),
			Quantity: item.Quantity,
			Name:     strings.TrimSpace(item.Name),
		})
	}
	return cart, true
}
