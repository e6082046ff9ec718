package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zolsal/price-service/internal/search"
	"github.com/zolsal/price-service/internal/store"
)

// ProductSearcher is the slice of the search service the product endpoints use.
type ProductSearcher interface {
	SearchProducts(ctx context.Context, query, city string, limit int) ([]search.Product, error)
	ProductByBarcode(ctx context.Context, barcode, city string) (*search.Product, error)
	Cities(ctx context.Context) ([]string, error)
	Chains(ctx context.Context) ([]store.Chain, error)
}

// SearchProductsResponse represents the response for product search
type SearchProductsResponse struct {
	Products []search.Product `json:"products"`
	Total    int              `json:"total"`
	Query    string           `json:"query"`
	City     string           `json:"city"`
}

// ChainInfo represents one supported chain
type ChainInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// CitiesResponse represents the list of cities with at least one branch
type CitiesResponse struct {
	Cities []string `json:"cities"`
	Total  int      `json:"total"`
}

// ChainsResponse represents the list of supported chains
type ChainsResponse struct {
	Chains []ChainInfo `json:"chains"`
	Total  int         `json:"total"`
}

// ProductsHandler serves product search and catalog lookups.
type ProductsHandler struct {
	search ProductSearcher
}

// NewProductsHandler creates a products handler around the search service.
func NewProductsHandler(search ProductSearcher) *ProductsHandler {
	return &ProductsHandler{search: search}
}

// SearchProducts searches products by name within a city, grouped by barcode
// @Summary Search products
// @Description Returns products matching the query in the given city, one entry per barcode with per-store prices and price statistics
// @Tags products
// @Produce json
// @Param q query string true "Search term"
// @Param city query string true "City name as published in the store feeds"
// @Param limit query int false "Maximum products to return" default(20) minimum(1) maximum(100)
// @Success 200 {object} SearchProductsResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/products/search [get]
func (h *ProductsHandler) SearchProducts(c *gin.Context) {
	city := strings.TrimSpace(c.Query("city"))
	if city == "" {
		abortError(c, http.StatusBadRequest, "missing_city", "city query parameter is required")
		return
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		abortError(c, http.StatusBadRequest, "missing_query", "q query parameter is required")
		return
	}

	limit := search.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			abortError(c, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		limit = n
	}

	products, err := h.search.SearchProducts(c.Request.Context(), query, city, limit)
	if err != nil {
		abortError(c, http.StatusInternalServerError, "search_failed", "failed to search products")
		return
	}

	c.JSON(http.StatusOK, SearchProductsResponse{
		Products: products,
		Total:    len(products),
		Query:    query,
		City:     city,
	})
}

// GetProduct returns one product by barcode with its prices in a city
// @Summary Get product by barcode
// @Description Returns the product with the given barcode and its per-store prices in the city
// @Tags products
// @Produce json
// @Param barcode path string true "Product barcode"
// @Param city query string true "City name as published in the store feeds"
// @Success 200 {object} search.Product
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/products/{barcode} [get]
func (h *ProductsHandler) GetProduct(c *gin.Context) {
	city := strings.TrimSpace(c.Query("city"))
	if city == "" {
		abortError(c, http.StatusBadRequest, "missing_city", "city query parameter is required")
		return
	}

	barcode := c.Param("barcode")
	product, err := h.search.ProductByBarcode(c.Request.Context(), barcode, city)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			abortError(c, http.StatusNotFound, "product_not_found", "no prices for this barcode in "+city)
			return
		}
		abortError(c, http.StatusInternalServerError, "lookup_failed", "failed to look up product")
		return
	}

	c.JSON(http.StatusOK, product)
}

// ListCities returns every city with at least one known branch
// @Summary List cities
// @Tags catalog
// @Produce json
// @Success 200 {object} CitiesResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/cities [get]
func (h *ProductsHandler) ListCities(c *gin.Context) {
	cities, err := h.search.Cities(c.Request.Context())
	if err != nil {
		abortError(c, http.StatusInternalServerError, "lookup_failed", "failed to list cities")
		return
	}

	c.JSON(http.StatusOK, CitiesResponse{Cities: cities, Total: len(cities)})
}

// ListChains returns the supported supermarket chains
// @Summary List chains
// @Tags catalog
// @Produce json
// @Success 200 {object} ChainsResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/chains [get]
func (h *ProductsHandler) ListChains(c *gin.Context) {
	chains, err := h.search.Chains(c.Request.Context())
	if err != nil {
		abortError(c, http.StatusInternalServerError, "lookup_failed", "failed to list chains")
		return
	}

	infos := make([]ChainInfo, 0, len(chains))
	for _, ch := range chains {
		infos = append(infos, ChainInfo{Name: ch.Name, DisplayName: ch.DisplayName})
	}

	c.JSON(http.StatusOK, ChainsResponse{Chains: infos, Total: len(infos)})
}
