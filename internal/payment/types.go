package payment

import "github.com/shopspring/decimal"

// Status values mirror the gateway's own payment states.
type Status string

const (
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusInProcess Status = "in_process"
	StatusPending   Status = "pending"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

type PreferenceItem struct {
	Title      string          `json:"title"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	CurrencyID string          `json:"currency_id"`
}

type Payer struct {
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Email   string `json:"email"`
}

type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

// PreferenceRequest is the payment-intent creation payload. ExternalReference
// must carry the order id; it is the only link the reconciliation path has
// back to the order. Back and notification URLs must be publicly reachable.
type PreferenceRequest struct {
	Items             []PreferenceItem `json:"items"`
	Payer             Payer            `json:"payer"`
	BackURLs          BackURLs         `json:"back_urls"`
	AutoReturn        string           `json:"auto_return,omitempty"`
	NotificationURL   string           `json:"notification_url"`
	ExternalReference string           `json:"external_reference"`
}

type Preference struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// Payment is the gateway's authoritative view of a payment, fetched by id.
// Reconciliation never trusts status fields embedded in webhook payloads.
type Payment struct {
	ID                string
	Status            Status
	StatusDetail      string
	ExternalReference string
	TransactionAmount decimal.Decimal
}

// Cents converts an integer-cents amount into the decimal the gateway wire
// format expects.
func Cents(c int) decimal.Decimal {
	return decimal.NewFromInt(int64(c)).Div(decimal.NewFromInt(100))
}
