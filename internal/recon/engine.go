package recon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/adisetyo/go-storefront-orders/internal/invoice"
	"github.com/adisetyo/go-storefront-orders/internal/notify"
	"github.com/adisetyo/go-storefront-orders/internal/orders"
	"github.com/adisetyo/go-storefront-orders/internal/payment"
	"github.com/adisetyo/go-storefront-orders/internal/redisx"
)

type Gateway interface {
	FetchPayment(ctx context.Context, paymentID string) (*payment.Payment, error)
	SearchPaymentByReference(ctx context.Context, ref string) (*payment.Payment, error)
}

type Store interface {
	PaymentProcessed(ctx context.Context, paymentID string) (bool, error)
	FindByID(ctx context.Context, id string) (*orders.Order, error)
	ApplyTransition(ctx context.Context, t orders.Transition) error
	SetInvoice(ctx context.Context, orderID, number, status string) error
	ListStuck(ctx context.Context, olderThan time.Duration, limit int) ([]orders.Order, error)
}

type Invoicer interface {
	Issue(ctx context.Context, o *orders.Order) (*invoice.Invoice, error)
}

type Dispatcher interface {
	Enqueue(eventType, orderID string, kv map[string]string)
}

// Cache is the fast-path key store in front of the durable tables: webhook
// dedup markers and the order-status read cache. Every call is best-effort.
type Cache interface {
	Exists(ctx context.Context, key string) bool
	Set(ctx context.Context, key string, ttl time.Duration)
	Del(ctx context.Context, key string)
}

// Engine drives the order state machine from gateway payment events. It
// never trusts a webhook payload's status: the payment is re-fetched from
// the gateway by id before any local mutation.
type Engine struct {
	Store    Store
	Gateway  Gateway
	Notify   Dispatcher
	Invoicer Invoicer

	// Cache is optional; nil disables the dedup fast path and leaves stale
	// order-status entries to their TTL.
	Cache Cache
}

// ProcessPayment reconciles one gateway payment id. Concurrent and repeated
// deliveries of the same id converge on the same final order state; side
// effects fire at most once because the idempotency record commits with the
// transition.
func (e *Engine) ProcessPayment(ctx context.Context, paymentID string) (Outcome, error) {
	if e.seenFast(ctx, paymentID) {
		return OutcomeDuplicate, nil
	}
	done, err := e.Store.PaymentProcessed(ctx, paymentID)
	if err != nil {
		return OutcomeNone, err
	}
	if done {
		e.markFast(ctx, paymentID)
		return OutcomeDuplicate, nil
	}

	p, err := e.Gateway.FetchPayment(ctx, paymentID)
	if err != nil {
		return OutcomeNone, fmt.Errorf("fetch payment %s: %w", paymentID, err)
	}

	if p.ExternalReference == "" {
		log.Printf("recon: payment %s has no external reference, discarding", paymentID)
		return OutcomeOrderNotFound, nil
	}
	order, err := e.Store.FindByID(ctx, p.ExternalReference)
	if errors.Is(err, orders.ErrNotFound) {
		log.Printf("recon: payment %s references unknown order %s, discarding", paymentID, p.ExternalReference)
		return OutcomeOrderNotFound, nil
	}
	if err != nil {
		return OutcomeNone, err
	}
	if order.Status.PaymentFinal() {
		log.Printf("recon: order %s already %s, discarding payment %s", order.ID, order.Status, paymentID)
		return OutcomeFinalized, nil
	}

	t, outcome := e.transitionFor(order, p)
	if outcome != OutcomeApplied {
		if t.OrderID != "" {
			// rejected order back to awaiting while the shopper retries;
			// no idempotency record so a later status change still lands
			if err := e.Store.ApplyTransition(ctx, t); err != nil && !errors.Is(err, orders.ErrInvalidTransition) {
				return OutcomeNone, err
			}
			e.forgetStatus(ctx, t.OrderID)
		}
		return outcome, nil
	}

	if err := e.Store.ApplyTransition(ctx, t); err != nil {
		if errors.Is(err, orders.ErrInvalidTransition) {
			log.Printf("recon: order %s cannot move %s -> %s, discarding payment %s", order.ID, order.Status, t.To, paymentID)
			return OutcomeIgnored, nil
		}
		return OutcomeNone, err
	}
	e.markFast(ctx, paymentID)
	// drop the cached status so the next read sees the new state immediately
	e.forgetStatus(ctx, t.OrderID)

	e.sideEffects(ctx, order, t)
	return OutcomeApplied, nil
}

// transitionFor maps the gateway's payment status to a local transition.
// OutcomePending means no durable record is written: gateways reuse the same
// payment id when a pending payment later settles.
func (e *Engine) transitionFor(o *orders.Order, p *payment.Payment) (orders.Transition, Outcome) {
	switch p.Status {
	case payment.StatusApproved:
		return orders.Transition{OrderID: o.ID, To: orders.StatusPaymentApproved, Paid: true, PaymentID: p.ID}, OutcomeApplied
	case payment.StatusRejected:
		return orders.Transition{OrderID: o.ID, To: orders.StatusPaymentRejected, PaymentID: p.ID}, OutcomeApplied
	case payment.StatusCancelled:
		return orders.Transition{OrderID: o.ID, To: orders.StatusCancelled, PaymentID: p.ID, ReleaseStock: true}, OutcomeApplied
	case payment.StatusRefunded:
		return orders.Transition{OrderID: o.ID, To: orders.StatusRefunded, PaymentID: p.ID, ReleaseStock: true}, OutcomeApplied
	case payment.StatusInProcess, payment.StatusPending:
		if o.Status == orders.StatusPaymentRejected {
			return orders.Transition{OrderID: o.ID, To: orders.StatusAwaitingPayment}, OutcomePending
		}
		return orders.Transition{}, OutcomePending
	default:
		log.Printf("recon: unknown gateway status %q for payment %s", p.Status, p.ID)
		return orders.Transition{}, OutcomeIgnored
	}
}

// sideEffects runs the best-effort followups of a committed transition.
// Failures here are warnings; the transition is never rolled back for them.
func (e *Engine) sideEffects(ctx context.Context, o *orders.Order, t orders.Transition) {
	switch t.To {
	case orders.StatusPaymentApproved:
		if e.Notify != nil {
			e.Notify.Enqueue(notify.EventPaymentApproved, o.ID, map[string]string{"email": o.Email})
		}
		e.issueInvoice(ctx, o)
	case orders.StatusPaymentRejected:
		if e.Notify != nil {
			e.Notify.Enqueue(notify.EventPaymentRejected, o.ID, map[string]string{"email": o.Email})
		}
	case orders.StatusCancelled, orders.StatusRefunded:
		if e.Notify != nil {
			e.Notify.Enqueue(notify.EventOrderCancelled, o.ID, map[string]string{"email": o.Email})
		}
	}
}

func (e *Engine) issueInvoice(ctx context.Context, o *orders.Order) {
	if e.Invoicer == nil {
		return
	}
	inv, err := e.Invoicer.Issue(ctx, o)
	if err != nil {
		log.Printf("recon: invoice for order %s failed: %v", o.ID, err)
		if serr := e.Store.SetInvoice(ctx, o.ID, "", "failed"); serr != nil {
			log.Printf("recon: record invoice failure for order %s: %v", o.ID, serr)
		}
		return
	}
	if err := e.Store.SetInvoice(ctx, o.ID, inv.Number, inv.Status); err != nil {
		log.Printf("recon: record invoice for order %s: %v", o.ID, err)
	}
}

// ReprocessPending re-drives reconciliation for orders stuck in a pending
// state. Individual failures are logged and skipped so one bad order cannot
// abort the batch.
func (e *Engine) ReprocessPending(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	stuck, err := e.Store.ListStuck(ctx, olderThan, limit)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, o := range stuck {
		paymentID := o.PaymentID
		if paymentID == "" {
			p, err := e.Gateway.SearchPaymentByReference(ctx, o.ID)
			if err != nil {
				log.Printf("recon: search payment for order %s: %v", o.ID, err)
				continue
			}
			if p == nil {
				continue // shopper never started paying
			}
			paymentID = p.ID
		}
		outcome, err := e.ProcessPayment(ctx, paymentID)
		if err != nil {
			log.Printf("recon: reprocess order %s payment %s: %v", o.ID, paymentID, err)
			continue
		}
		if outcome == OutcomeApplied {
			applied++
		}
	}
	return applied, nil
}

func (e *Engine) seenFast(ctx context.Context, paymentID string) bool {
	if e.Cache == nil {
		return false
	}
	return e.Cache.Exists(ctx, fmt.Sprintf(redisx.KeyPaymentSeen, paymentID))
}

func (e *Engine) markFast(ctx context.Context, paymentID string) {
	if e.Cache == nil {
		return
	}
	e.Cache.Set(ctx, fmt.Sprintf(redisx.KeyPaymentSeen, paymentID), redisx.TTLPaymentSeen)
}

func (e *Engine) forgetStatus(ctx context.Context, orderID string) {
	if e.Cache == nil {
		return
	}
	e.Cache.Del(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID))
}
