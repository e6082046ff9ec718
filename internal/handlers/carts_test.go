package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zolsal/price-service/internal/auth"
	"github.com/zolsal/price-service/internal/middleware"
	"github.com/zolsal/price-service/internal/store"
	"github.com/zolsal/price-service/internal/types"
)

const cartsTestUserID int64 = 7

// fakeCartStore implements SavedCartStore over an in-memory map keyed by
// cart id. Lookups honor the owner check the SQL store performs.
type fakeCartStore struct {
	carts  map[int64]*store.SavedCart
	nextID int64
	err    error
}

func newFakeCartStore() *fakeCartStore {
	return &fakeCartStore{carts: map[int64]*store.SavedCart{}, nextID: 1}
}

func (f *fakeCartStore) add(userID int64, name, city string, items []types.CartItem) *store.SavedCart {
	cart := &store.SavedCart{
		CartID:   f.nextID,
		UserID:   userID,
		CartName: name,
		City:     city,
		Items:    items,
	}
	f.carts[cart.CartID] = cart
	f.nextID++
	return cart
}

func (f *fakeCartStore) ListSavedCarts(_ context.Context, userID int64) ([]store.SavedCart, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := []store.SavedCart{}
	for _, cart := range f.carts {
		if cart.UserID == userID {
			out = append(out, *cart)
		}
	}
	return out, nil
}

func (f *fakeCartStore) GetSavedCart(_ context.Context, userID, cartID int64) (*store.SavedCart, error) {
	if f.err != nil {
		return nil, f.err
	}
	cart, ok := f.carts[cartID]
	if !ok || cart.UserID != userID {
		return nil, fmt.Errorf("cart %d: %w", cartID, store.ErrNotFound)
	}
	return cart, nil
}

func (f *fakeCartStore) UpsertSavedCart(_ context.Context, userID int64, cartName, city string, items []types.CartItem) (*store.SavedCart, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, cart := range f.carts {
		if cart.UserID == userID && cart.CartName == cartName {
			cart.City = city
			cart.Items = items
			return cart, nil
		}
	}
	return f.add(userID, cartName, city, items), nil
}

func (f *fakeCartStore) DeleteSavedCart(_ context.Context, userID, cartID int64) error {
	if f.err != nil {
		return f.err
	}
	cart, ok := f.carts[cartID]
	if !ok || cart.UserID != userID {
		return fmt.Errorf("cart %d: %w", cartID, store.ErrNotFound)
	}
	delete(f.carts, cartID)
	return nil
}

// cartsRouter mounts the saved-carts handler behind the real JWT middleware
// and returns a bearer token for cartsTestUserID.
func cartsRouter(t *testing.T, st SavedCartStore, comparator Comparer) (*gin.Engine, string) {
	t.Helper()

	tokens := auth.NewJWTManager("carts-test-secret", time.Hour)
	token, err := tokens.GenerateToken(cartsTestUserID, "shopper@example.com")
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewSavedCartsHandler(st, comparator)

	group := router.Group("/api/v1/carts", middleware.UserAuth(tokens))
	group.GET("", h.ListCarts)
	group.POST("", h.SaveCart)
	group.GET("/:id", h.GetCart)
	group.DELETE("/:id", h.DeleteCart)
	group.POST("/:id/compare", h.CompareSavedCart)
	group.GET("/:id/export", h.ExportSavedCart)

	return router, token
}

func doAuthed(t *testing.T, router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf *bytes.Buffer
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewBuffer(jsonBody)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCartsRequireAuth(t *testing.T) {
	router, _ := cartsRouter(t, newFakeCartStore(), &fakeComparer{})

	w := doAuthed(t, router, "GET", "/api/v1/carts", "", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListCartsEndpoint(t *testing.T) {
	st := newFakeCartStore()
	st.add(cartsTestUserID, "שבועי", "חיפה", []types.CartItem{{Barcode: "729", Quantity: 1}})
	st.add(99, "someone elses", "תל אביב", []types.CartItem{{Barcode: "111", Quantity: 2}})

	router, token := cartsRouter(t, st, &fakeComparer{})

	w := doAuthed(t, router, "GET", "/api/v1/carts", token, nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp ListCartsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "שבועי", resp.Carts[0].Name)
	assert.Equal(t, "חיפה", resp.Carts[0].City)
}

func TestGetCartEndpoint(t *testing.T) {
	st := newFakeCartStore()
	cart := st.add(cartsTestUserID, "שבועי", "חיפה", []types.CartItem{{Barcode: "729", Quantity: 1}})

	router, token := cartsRouter(t, st, &fakeComparer{})

	w := doAuthed(t, router, "GET", fmt.Sprintf("/api/v1/carts/%d", cart.CartID), token, nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp SavedCartResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, cart.CartID, resp.ID)
	assert.Equal(t, "שבועי", resp.Name)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "729", resp.Items[0].Barcode)
}

func TestGetCartNotFound(t *testing.T) {
	router, token := cartsRouter(t, newFakeCartStore(), &fakeComparer{})

	w := doAuthed(t, router, "GET", "/api/v1/carts/12345", token, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "cart_not_found", errorCode(t, w.Body.Bytes()))
}

func TestGetCartHidesOtherUsers(t *testing.T) {
	st := newFakeCartStore()
	cart := st.add(99, "someone elses", "תל אביב", []types.CartItem{{Barcode: "111", Quantity: 2}})

	router, token := cartsRouter(t, st, &fakeComparer{})

	w := doAuthed(t, router, "GET", fmt.Sprintf("/api/v1/carts/%d", cart.CartID), token, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetCartRejectsBadID(t *testing.T) {
	router, token := cartsRouter(t, newFakeCartStore(), &fakeComparer{})

	w := doAuthed(t, router, "GET", "/api/v1/carts/abc", token, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_cart_id", errorCode(t, w.Body.Bytes()))
}

func TestSaveCartEndpoint(t *testing.T) {
	st := newFakeCartStore()
	router, token := cartsRouter(t, st, &fakeComparer{})

	w := doAuthed(t, router, "POST", "/api/v1/carts", token, SaveCartRequest{
		Name: "שבועי",
		City: "חיפה",
		Items: []CartItemRequest{
			{Barcode: "7290000000001", Quantity: 2, Name: "חלב"},
		},
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp SavedCartResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "שבועי", resp.Name)
	assert.Equal(t, "חיפה", resp.City)
	require.Len(t, resp.Items, 1)

	saved, err := st.GetSavedCart(context.Background(), cartsTestUserID, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "שבועי", saved.CartName)
}

func TestSaveCartReplacesByName(t *testing.T) {
	st := newFakeCartStore()
	existing := st.add(cartsTestUserID, "שבועי", "חיפה", []types.CartItem{{Barcode: "111", Quantity: 1}})

	router, token := cartsRouter(t, st, &fakeComparer{})

	w := doAuthed(t, router, "POST", "/api/v1/carts", token, SaveCartRequest{
		Name:  "שבועי",
		City:  "תל אביב",
		Items: []CartItemRequest{{Barcode: "222", Quantity: 3}},
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp SavedCartResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, existing.CartID, resp.ID, "saving the same name should replace, not create")
	assert.Equal(t, "תל אביב", resp.City)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "222", resp.Items[0].Barcode)
}

func TestSaveCartValidation(t *testing.T) {
	tests := []struct {
		name     string
		body     SaveCartRequest
		wantCode string
	}{
		{
			name:     "missing name",
			body:     SaveCartRequest{City: "Haifa", Items: []CartItemRequest{{Barcode: "729", Quantity: 1}}},
			wantCode: "missing_name",
		},
		{
			name:     "missing city",
			body:     SaveCartRequest{Name: "weekly", Items: []CartItemRequest{{Barcode: "729", Quantity: 1}}},
			wantCode: "missing_city",
		},
		{
			name:     "empty items",
			body:     SaveCartRequest{Name: "weekly", City: "Haifa"},
			wantCode: "empty_cart",
		},
		{
			name:     "zero quantity",
			body:     SaveCartRequest{Name: "weekly", City: "Haifa", Items: []CartItemRequest{{Barcode: "729", Quantity: 0}}},
			wantCode: "invalid_quantity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, token := cartsRouter(t, newFakeCartStore(), &fakeComparer{})

			w := doAuthed(t, router, "POST", "/api/v1/carts", token, tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, w.Body.Bytes()))
		})
	}
}

func TestDeleteCartEndpoint(t *testing.T) {
	st := newFakeCartStore()
	cart := st.add(cartsTestUserID, "שבועי", "חיפה", []types.CartItem{{Barcode: "729", Quantity: 1}})

	router, token := cartsRouter(t, st, &fakeComparer{})

	w := doAuthed(t, router, "DELETE", fmt.Sprintf("/api/v1/carts/%d", cart.CartID), token, nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, st.carts)
}

func TestDeleteCartNotFound(t *testing.T) {
	router, token := cartsRouter(t, newFakeCartStore(), &fakeComparer{})

	w := doAuthed(t, router, "DELETE", "/api/v1/carts/12345", token, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCompareSavedCartEndpoint(t *testing.T) {
	st := newFakeCartStore()
	items := []types.CartItem{
		{Barcode: "7290000000001", Quantity: 2},
		{Barcode: "7290000000002", Quantity: 1},
	}
	cart := st.add(cartsTestUserID, "שבועי", "חיפה", items)

	comparator := &fakeComparer{}
	router, token := cartsRouter(t, st, comparator)

	w := doAuthed(t, router, "POST", fmt.Sprintf("/api/v1/carts/%d/compare", cart.CartID), token, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, comparator.calls)
	assert.Equal(t, "חיפה", comparator.lastCity, "comparison should use the stored city")
	assert.Equal(t, items, comparator.lastItems, "comparison should use the stored items")
}

func TestCompareSavedCartNotFound(t *testing.T) {
	comparator := &fakeComparer{}
	router, token := cartsRouter(t, newFakeCartStore(), comparator)

	w := doAuthed(t, router, "POST", "/api/v1/carts/12345/compare", token, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Zero(t, comparator.calls)
}

func TestExportSavedCartEndpoint(t *testing.T) {
	st := newFakeCartStore()
	cart := st.add(cartsTestUserID, "שבועי", "חיפה", []types.CartItem{{Barcode: "729", Quantity: 1}})

	router, token := cartsRouter(t, st, &fakeComparer{})

	w := doAuthed(t, router, "GET", fmt.Sprintf("/api/v1/carts/%d/export", cart.CartID), token, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), fmt.Sprintf("cart-%d.xlsx", cart.CartID))
	assert.Equal(t, []byte("PK"), w.Body.Bytes()[:2])
}
