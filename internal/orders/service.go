package orders

import (
	"context"
	"fmt"

	"github.com/adisetyo/go-storefront-orders/internal/notify"
	"github.com/adisetyo/go-storefront-orders/internal/payment"
)

type ShippingPolicy struct {
	Cents         int
	FreeOverCents int
}

func (p ShippingPolicy) For(subtotalCents int) int {
	if p.FreeOverCents > 0 && subtotalCents >= p.FreeOverCents {
		return 0
	}
	return p.Cents
}

type Store interface {
	CreateCheckout(ctx context.Context, cartID, userID string, d Delivery, ship ShippingPolicy) (*Order, []StockShortage, error)
	SetPreference(ctx context.Context, orderID, preferenceID string) error
	FindByID(ctx context.Context, id string) (*Order, error)
	Cancel(ctx context.Context, orderID string) error
}

type PaymentGateway interface {
	CreatePreference(ctx context.Context, req payment.PreferenceRequest) (*payment.Preference, error)
}

type Dispatcher interface {
	Enqueue(eventType, orderID string, kv map[string]string)
}

type Service struct {
	Store   Store
	Gateway PaymentGateway
	Notify  Dispatcher

	// PublicBaseURL is where the gateway sends shoppers and webhooks back
	// to; it must never be a loopback address.
	PublicBaseURL string
	Shipping      ShippingPolicy
	Currency      string
}

type CheckoutResult struct {
	OrderID     string `json:"order_id"`
	RedirectURL string `json:"redirect_url"`
}

// Checkout converts the cart into an order with stock reserved, then creates
// the payment preference. If the gateway call fails the order stays in
// awaiting_payment with its reservation intact: the shopper retries payment,
// the reservation keeps the items from being sold twice meanwhile.
func (s *Service) Checkout(ctx context.Context, cartID, userID string, d Delivery) (*CheckoutResult, error) {
	if missing := d.MissingFields(); len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}

	order, shortages, err := s.Store.CreateCheckout(ctx, cartID, userID, d, s.Shipping)
	if err != nil {
		return nil, err
	}
	if len(shortages) > 0 {
		return nil, &OutOfStockError{Shortages: shortages}
	}

	pref, err := s.Gateway.CreatePreference(ctx, s.preferenceFor(order))
	if err != nil {
		return nil, fmt.Errorf("create payment preference for order %s: %w", order.ID, err)
	}
	if err := s.Store.SetPreference(ctx, order.ID, pref.ID); err != nil {
		return nil, err
	}

	if s.Notify != nil {
		s.Notify.Enqueue(notify.EventOrderConfirmed, order.ID, map[string]string{"email": order.Email})
	}
	return &CheckoutResult{OrderID: order.ID, RedirectURL: pref.InitPoint}, nil
}

// RetryPayment creates a fresh payment preference for an order whose shopper
// has no usable redirect: the gateway call failed during checkout, or the
// previous payment was rejected. The order and its reservation are reused, so
// no duplicate order appears; reconciliation dedups by payment id, so an
// older preference somehow paid later still lands exactly once.
func (s *Service) RetryPayment(ctx context.Context, orderID string) (*CheckoutResult, error) {
	o, err := s.Store.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusAwaitingPayment && o.Status != StatusPaymentRejected {
		return nil, ErrInvalidTransition
	}
	pref, err := s.Gateway.CreatePreference(ctx, s.preferenceFor(o))
	if err != nil {
		return nil, fmt.Errorf("create payment preference for order %s: %w", o.ID, err)
	}
	if err := s.Store.SetPreference(ctx, o.ID, pref.ID); err != nil {
		return nil, err
	}
	return &CheckoutResult{OrderID: o.ID, RedirectURL: pref.InitPoint}, nil
}

func (s *Service) Cancel(ctx context.Context, orderID string) error {
	if err := s.Store.Cancel(ctx, orderID); err != nil {
		return err
	}
	if s.Notify != nil {
		s.Notify.Enqueue(notify.EventOrderCancelled, orderID, nil)
	}
	return nil
}

func (s *Service) preferenceFor(o *Order) payment.PreferenceRequest {
	currency := s.Currency
	if currency == "" {
		currency = "BRL"
	}
	items := make([]payment.PreferenceItem, 0, len(o.Items)+1)
	for _, it := range o.Items {
		items = append(items, payment.PreferenceItem{
			Title:      it.Name,
			Quantity:   it.Qty,
			UnitPrice:  payment.Cents(it.PriceCents),
			CurrencyID: currency,
		})
	}
	if o.ShippingCents > 0 {
		items = append(items, payment.PreferenceItem{
			Title:      "Shipping",
			Quantity:   1,
			UnitPrice:  payment.Cents(o.ShippingCents),
			CurrencyID: currency,
		})
	}
	return payment.PreferenceRequest{
		Items: items,
		Payer: payment.Payer{Name: o.FirstName, Surname: o.LastName, Email: o.Email},
		BackURLs: payment.BackURLs{
			Success: s.PublicBaseURL + "/payments/success",
			Failure: s.PublicBaseURL + "/payments/failure",
			Pending: s.PublicBaseURL + "/payments/pending",
		},
		AutoReturn:        "approved",
		NotificationURL:   s.PublicBaseURL + "/payments/webhook",
		ExternalReference: o.ID,
	}
}
