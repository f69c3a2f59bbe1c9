package invoice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/adisetyo/go-storefront-orders/internal/orders"
	"github.com/adisetyo/go-storefront-orders/internal/payment"
)

// Invoice is the issuing service's answer; number and document URLs are
// recorded on the order for later lookup.
type Invoice struct {
	Number       string   `json:"number"`
	Status       string   `json:"status"`
	DocumentURLs []string `json:"document_urls"`
}

type issueItem struct {
	SKU       string          `json:"sku"`
	Name      string          `json:"description"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type issueRequest struct {
	OrderID      string          `json:"order_id"`
	CustomerName string          `json:"customer_name"`
	Email        string          `json:"email"`
	Amount       decimal.Decimal `json:"amount"`
	Items        []issueItem     `json:"items"`
}

// Client talks to the external invoice-issuance API. Issue is called only
// after payment approval; a failure here never reverses the payment
// transition.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{BaseURL: baseURL, APIKey: apiKey, HTTP: &http.Client{Timeout: 15 * time.Second}}
}

func (c *Client) Issue(ctx context.Context, o *orders.Order) (*Invoice, error) {
	req := issueRequest{
		OrderID:      o.ID,
		CustomerName: o.FirstName + " " + o.LastName,
		Email:        o.Email,
		Amount:       payment.Cents(o.TotalCents),
	}
	for _, it := range o.Items {
		req.Items = append(req.Items, issueItem{
			SKU:       it.SKU,
			Name:      it.Name,
			Quantity:  it.Qty,
			UnitPrice: payment.Cents(it.PriceCents),
		})
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	hr, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/invoices", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	hr.Header.Set("Authorization", "Bearer "+c.APIKey)
	hr.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(hr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("invoice service http %d: %s", resp.StatusCode, b)
	}

	var inv Invoice
	if err := json.NewDecoder(resp.Body).Decode(&inv); err != nil {
		return nil, err
	}
	return &inv, nil
}
