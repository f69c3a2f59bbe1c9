package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adisetyo/go-storefront-orders/internal/catalog"
)

// Cart belongs to exactly one of an authenticated user or an anonymous
// session token. It is created lazily on first interaction and destroyed by a
// successful checkout.
type Cart struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Line is a cart line joined with the current product price. Prices here are
// live catalog prices; they are only frozen when the cart becomes an order.
type Line struct {
	ProductID  string `json:"product_id"`
	Qty        int    `json:"qty"`
	Name       string `json:"name"`
	PriceCents int    `json:"price_cents"`
}

type Totals struct {
	Items      int `json:"items"`
	PriceCents int `json:"price_cents"`
}

var ErrQuantityBounds = errors.New("quantity out of bounds")

type OutOfStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock: product=%s requested=%d available=%d", e.ProductID, e.Requested, e.Available)
}

type Store interface {
	GetOrCreateForUser(ctx context.Context, userID string) (*Cart, error)
	GetOrCreateForSession(ctx context.Context, sessionID string) (*Cart, error)
	// FindBySession returns (nil, nil) when the session has no cart.
	FindBySession(ctx context.Context, sessionID string) (*Cart, error)
	LineQty(ctx context.Context, cartID, productID string) (int, error)
	// SetLine upserts the line; qty <= 0 deletes it.
	SetLine(ctx context.Context, cartID, productID string, qty int) error
	Lines(ctx context.Context, cartID string) ([]Line, error)
	Delete(ctx context.Context, cartID string) error
}

type Catalog interface {
	GetProduct(ctx context.Context, id string) (*catalog.Product, error)
}
