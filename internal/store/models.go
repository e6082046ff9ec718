package store

import (
	"time"

	"github.com/zolsal/price-service/internal/types"
)

// Chain represents a retail chain (Shufersal, Victory).
type Chain struct {
	ChainID     int64     `json:"chain_id"`
	Name        string    `json:"name"`         // lowercase tag, e.g. "shufersal"
	DisplayName string    `json:"display_name"` // Hebrew display name
	CreatedAt   time.Time `json:"created_at"`
}

// Branch represents one physical store of a chain. StoreID is the
// chain-native identifier; (ChainID, StoreID) is unique.
type Branch struct {
	BranchID int64  `json:"branch_id"`
	ChainID  int64  `json:"chain_id"`
	StoreID  string `json:"store_id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	City     string `json:"city"`
}

// ChainProduct is a barcode as sold by one chain. The same barcode at two
// chains is two rows; (ChainID, Barcode) is unique.
type ChainProduct struct {
	ChainProductID int64  `json:"chain_product_id"`
	ChainID        int64  `json:"chain_id"`
	Barcode        string `json:"barcode"`
	Name           string `json:"name"`
}

// BranchPrice is the current observed price of a ChainProduct at one Branch,
// in agorot. (ChainProductID, BranchID) is unique; LastUpdated moves only
// when the price actually changes.
type BranchPrice struct {
	PriceID        int64     `json:"price_id"`
	ChainProductID int64     `json:"chain_product_id"`
	BranchID       int64     `json:"branch_id"`
	PriceAgorot    int       `json:"price_agorot"`
	LastUpdated    time.Time `json:"last_updated"`
}

// User is an account row. Email is stored lowercase.
type User struct {
	UserID       int64     `json:"user_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// SavedCart is a named basket owned by a user. (UserID, CartName) is unique;
// saving under an existing name replaces the row's items and city.
type SavedCart struct {
	CartID    int64            `json:"cart_id"`
	UserID    int64            `json:"user_id"`
	CartName  string           `json:"cart_name"`
	City      string           `json:"city"`
	Items     []types.CartItem `json:"items"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
