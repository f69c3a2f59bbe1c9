package orders

import "time"

// Order is an immutable snapshot of a checked-out cart. Only status, paid and
// the gateway/invoice reference fields ever change after creation; orders are
// never hard-deleted.
type Order struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Address    string `json:"address"`
	PostalCode string `json:"postal_code"`
	City       string `json:"city"`
	State      string `json:"state"`

	Status        Status `json:"status"`
	Paid          bool   `json:"paid"`
	TotalCents    int    `json:"total_cents"`
	ShippingCents int    `json:"shipping_cents"`

	PreferenceID  string `json:"preference_id,omitempty"`
	PaymentID     string `json:"payment_id,omitempty"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	InvoiceStatus string `json:"invoice_status,omitempty"`

	Items []Item `json:"items,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item freezes name, sku and unit price at purchase time. The product
// reference is kept for fulfillment but is not authoritative for pricing.
type Item struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	SKU        string `json:"sku"`
	PriceCents int    `json:"price_cents"`
	Qty        int    `json:"qty"`
}

type Delivery struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Address    string `json:"address"`
	PostalCode string `json:"postal_code"`
	City       string `json:"city"`
	State      string `json:"state"`
}

func (d Delivery) MissingFields() []string {
	var out []string
	for _, f := range []struct{ name, v string }{
		{"first_name", d.FirstName},
		{"last_name", d.LastName},
		{"email", d.Email},
		{"address", d.Address},
		{"postal_code", d.PostalCode},
		{"city", d.City},
		{"state", d.State},
	} {
		if f.v == "" {
			out = append(out, f.name)
		}
	}
	return out
}

type StockShortage struct {
	ProductID string `json:"product_id"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
}

// Transition is one reconciliation step applied atomically: the status
// change, the optional stock release and the idempotency record all commit
// in a single transaction.
type Transition struct {
	OrderID      string
	To           Status
	Paid         bool
	PaymentID    string
	ReleaseStock bool
}
