package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zolsal/price-service/internal/export"
	"github.com/zolsal/price-service/internal/middleware"
	"github.com/zolsal/price-service/internal/store"
	"github.com/zolsal/price-service/internal/types"
)

// SavedCartStore is the slice of the store the saved-cart endpoints use.
type SavedCartStore interface {
	ListSavedCarts(ctx context.Context, userID int64) ([]store.SavedCart, error)
	GetSavedCart(ctx context.Context, userID, cartID int64) (*store.SavedCart, error)
	UpsertSavedCart(ctx context.Context, userID int64, cartName, city string, items []types.CartItem) (*store.SavedCart, error)
	DeleteSavedCart(ctx context.Context, userID, cartID int64) error
}

// SaveCartRequest represents the body for saving a cart
type SaveCartRequest struct {
	Name  string            `json:"name"`
	City  string            `json:"city"`
	Items []CartItemRequest `json:"items"`
}

// SavedCartResponse represents a saved cart in API responses
type SavedCartResponse struct {
	ID        int64            `json:"id"`
	Name      string           `json:"name"`
	City      string           `json:"city"`
	Items     []types.CartItem `json:"items"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// ListCartsResponse represents the response for listing saved carts
type ListCartsResponse struct {
	Carts []SavedCartResponse `json:"carts"`
	Total int                 `json:"total"`
}

// SavedCartsHandler serves the per-user saved carts behind JWT auth.
type SavedCartsHandler struct {
	store      SavedCartStore
	comparator Comparer
}

// NewSavedCartsHandler creates a saved-carts handler.
func NewSavedCartsHandler(store SavedCartStore, comparator Comparer) *SavedCartsHandler {
	return &SavedCartsHandler{store: store, comparator: comparator}
}

// ListCarts returns every cart saved by the authenticated user
// @Summary List saved carts
// @Tags carts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ListCartsResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/carts [get]
func (h *SavedCartsHandler) ListCarts(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}

	carts, err := h.store.ListSavedCarts(c.Request.Context(), userID)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "lookup_failed", "failed to list carts")
		return
	}

	resp := ListCartsResponse{Carts: make([]SavedCartResponse, 0, len(carts)), Total: len(carts)}
	for _, cart := range carts {
		resp.Carts = append(resp.Carts, savedCartResponse(&cart))
	}

	c.JSON(http.StatusOK, resp)
}

// GetCart returns one saved cart by id
// @Summary Get saved cart
// @Tags carts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Cart ID"
// @Success 200 {object} SavedCartResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/carts/{id} [get]
func (h *SavedCartsHandler) GetCart(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}
	cartID, ok := cartIDParam(c)
	if !ok {
		return
	}

	cart, err := h.store.GetSavedCart(c.Request.Context(), userID, cartID)
	if err != nil {
		writeCartLookupError(c, err)
		return
	}

	c.JSON(http.StatusOK, savedCartResponse(cart))
}

// SaveCart inserts or replaces a named cart for the authenticated user
// @Summary Save cart
// @Description Saves the cart under the given name; saving an existing name replaces its city and items
// @Tags carts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param cart body SaveCartRequest true "Cart name, city and items"
// @Success 200 {object} SavedCartResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/carts [post]
func (h *SavedCartsHandler) SaveCart(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}

	var req SaveCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		abortError(c, http.StatusBadRequest, "missing_name", "name is required")
		return
	}
	items, ok := validateCart(c, req.City, req.Items)
	if !ok {
		return
	}

	cart, err := h.store.UpsertSavedCart(c.Request.Context(), userID, strings.TrimSpace(req.Name), strings.TrimSpace(req.City), items)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "save_failed", "failed to save cart")
		return
	}

	c.JSON(http.StatusOK, savedCartResponse(cart))
}

// DeleteCart removes a saved cart
// @Summary Delete saved cart
// @Tags carts
// @Security BearerAuth
// @Param id path int true "Cart ID"
// @Success 204 "Deleted"
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/carts/{id} [delete]
func (h *SavedCartsHandler) DeleteCart(c *gin.Context) {
	userID, ok := authedUser(c)
	if !ok {
		return
	}
	cartID, ok := cartIDParam(c)
	if !ok {
		return
	}

	if err := h.store.DeleteSavedCart(c.Request.Context(), userID, cartID); err != nil {
		writeCartLookupError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// CompareSavedCart re-runs the comparison for a saved cart
// @Summary Compare saved cart
// @Description Prices the stored items in the stored city, same output as /cart/compare
// @Tags carts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Cart ID"
// @Success 200 {object} compare.CartComparison
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/carts/{id}/compare [post]
func (h *SavedCartsHandler) CompareSavedCart(c *gin.Context) {
	cart, ok := h.loadCart(c)
	if !ok {
		return
	}

	result, err := h.comparator.Compare(c.Request.Context(), cart.City, cart.Items)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "comparison_failed", "failed to compare cart")
		return
	}

	c.JSON(http.StatusOK, result)
}

// ExportSavedCart compares a saved cart and returns an XLSX workbook
// @Summary Export saved cart comparison
// @Tags carts
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param id path int true "Cart ID"
// @Success 200 {file} binary
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/carts/{id}/export [get]
func (h *SavedCartsHandler) ExportSavedCart(c *gin.Context) {
	cart, ok := h.loadCart(c)
	if !ok {
		return
	}

	result, err := h.comparator.Compare(c.Request.Context(), cart.City, cart.Items)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "comparison_failed", "failed to compare cart")
		return
	}

	book, err := export.Comparison(result)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "export_failed", "failed to build workbook")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="cart-%d.xlsx"`, cart.CartID))
	c.Data(http.StatusOK, xlsxContentType, book)
}

// loadCart resolves the authenticated user's cart from the :id param,
// writing the error response on failure.
func (h *SavedCartsHandler) loadCart(c *gin.Context) (*store.SavedCart, bool) {
	userID, ok := authedUser(c)
	if !ok {
		return nil, false
	}
	cartID, ok := cartIDParam(c)
	if !ok {
		return nil, false
	}

	cart, err := h.store.GetSavedCart(c.Request.Context(), userID, cartID)
	if err != nil {
		writeCartLookupError(c, err)
		return nil, false
	}
	return cart, true
}

func authedUser(c *gin.Context) (int64, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		abortError(c, http.StatusUnauthorized, "unauthorized", "authentication required")
		return 0, false
	}
	return userID, true
}

func cartIDParam(c *gin.Context) (int64, bool) {
	cartID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abortError(c, http.StatusBadRequest, "invalid_cart_id", "cart id must be an integer")
		return 0, false
	}
	return cartID, true
}

func writeCartLookupError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNotFound) {
		abortError(c, http.StatusNotFound, "cart_not_found", "no such cart")
		return
	}
	abortError(c, http.StatusInternalServerError, "lookup_failed", "failed to load cart")
}

func savedCartResponse(cart *store.SavedCart) SavedCartResponse {
	return SavedCartResponse{
		ID:        cart.CartID,
		Name:      cart.CartName,
		City:      cart.City,
		Items:     cart.Items,
		CreatedAt: cart.CreatedAt,
		UpdatedAt: cart.UpdatedAt,
	}
}
