package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adisetyo/go-storefront-orders/internal/inventory"
)

type Repo struct{ DB *pgxpool.Pool }

// CreateCheckout turns a cart into an order in a single transaction: lock
// each product row, verify and decrement stock, insert the order with frozen
// line snapshots, and destroy the cart. Any shortage rolls the whole thing
// back and reports every short line, not just the first.
func (r *Repo) CreateCheckout(ctx context.Context, cartID, userID string, d Delivery, ship ShippingPolicy) (*Order, []StockShortage, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	// lock in product-id order so two checkouts sharing products cannot
	// deadlock each other
	rows, err := tx.Query(ctx, `SELECT product_id, qty FROM cart_items WHERE cart_id=$1 ORDER BY product_id`, cartID)
	if err != nil {
		return nil, nil, err
	}
	type lineQty struct {
		productID string
		qty       int
	}
	var lines []lineQty
	for rows.Next() {
		var ln lineQty
		if err := rows.Scan(&ln.productID, &ln.qty); err != nil {
			rows.Close()
			return nil, nil, err
		}
		lines = append(lines, ln)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if len(lines) == 0 {
		return nil, nil, ErrEmptyCart
	}

	var (
		items     []Item
		shortages []StockShortage
		subtotal  int
	)
	for _, ln := range lines {
		p, err := inventory.LockProduct(ctx, tx, ln.productID)
		if err != nil {
			return nil, nil, err
		}
		if !p.Available || p.Stock < ln.qty {
			avail := p.Stock
			if !p.Available {
				avail = 0
			}
			shortages = append(shortages, StockShortage{ProductID: ln.productID, Required: ln.qty, Available: avail})
			continue
		}
		ok, err := inventory.ReserveTx(ctx, tx, ln.productID, ln.qty)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			shortages = append(shortages, StockShortage{ProductID: ln.productID, Required: ln.qty, Available: p.Stock})
			continue
		}
		items = append(items, Item{ProductID: ln.productID, Name: p.Name, SKU: p.SKU, PriceCents: p.PriceCents, Qty: ln.qty})
		subtotal += p.PriceCents * ln.qty
	}
	if len(shortages) > 0 {
		return nil, shortages, nil // rollback via defer
	}

	o := &Order{
		ID:            uuid.NewString(),
		UserID:        userID,
		FirstName:     d.FirstName,
		LastName:      d.LastName,
		Email:         d.Email,
		Address:       d.Address,
		PostalCode:    d.PostalCode,
		City:          d.City,
		State:         d.State,
		Status:        StatusAwaitingPayment,
		ShippingCents: ship.For(subtotal),
		Items:         items,
	}
	o.TotalCents = subtotal + o.ShippingCents

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, first_name, last_name, email, address, postal_code, city, state,
		                   status, paid, total_cents, shipping_cents)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,false,$11,$12)`,
		o.ID, o.UserID, o.FirstName, o.LastName, o.Email, o.Address, o.PostalCode, o.City, o.State,
		o.Status, o.TotalCents, o.ShippingCents)
	if err != nil {
		return nil, nil, err
	}
	for _, it := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, name, sku, price_cents, qty)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			o.ID, it.ProductID, it.Name, it.SKU, it.PriceCents, it.Qty); err != nil {
			return nil, nil, err
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, cartID); err != nil {
		return nil, nil, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM carts WHERE id=$1`, cartID); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, err
	}
	return o, nil, nil
}

func (r *Repo) FindByID(ctx context.Context, id string) (*Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, user_id, first_name, last_name, email, address, postal_code, city, state,
		       status, paid, total_cents, shipping_cents,
		       COALESCE(preference_id,''), COALESCE(payment_id,''),
		       COALESCE(invoice_number,''), COALESCE(invoice_status,''),
		       created_at, updated_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.UserID, &o.FirstName, &o.LastName, &o.Email, &o.Address, &o.PostalCode, &o.City, &o.State,
			&o.Status, &o.Paid, &o.TotalCents, &o.ShippingCents,
			&o.PreferenceID, &o.PaymentID, &o.InvoiceNumber, &o.InvoiceStatus,
			&o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `SELECT product_id, name, sku, price_cents, qty
	                              FROM order_items WHERE order_id=$1 ORDER BY sku`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ProductID, &it.Name, &it.SKU, &it.PriceCents, &it.Qty); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, it)
	}
	return &o, rows.Err()
}

func (r *Repo) SetPreference(ctx context.Context, orderID, preferenceID string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET preference_id=$2, updated_at=now() WHERE id=$1`, orderID, preferenceID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) SetInvoice(ctx context.Context, orderID, number, status string) error {
	_, err := r.DB.Exec(ctx, `UPDATE orders SET invoice_number=$2, invoice_status=$3, updated_at=now() WHERE id=$1`,
		orderID, number, status)
	return err
}

// PaymentProcessed reports whether a gateway payment id has already been
// applied; the processed_payments table is the durable idempotency record.
func (r *Repo) PaymentProcessed(ctx context.Context, paymentID string) (bool, error) {
	var n int
	err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM processed_payments WHERE payment_id=$1`, paymentID).Scan(&n)
	return n > 0, err
}

// ApplyTransition re-validates the transition under the order's row lock,
// applies it together with the optional stock release, and writes the
// idempotency record in the same transaction. A crash before commit leaves no
// record, so gateway redelivery safely reprocesses.
func (r *Repo) ApplyTransition(ctx context.Context, t Transition) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var cur Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, t.OrderID).Scan(&cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if !CanTransition(cur, t.To) {
		return ErrInvalidTransition
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET status=$2, paid=$3,
		    payment_id = COALESCE(NULLIF($4,''), payment_id),
		    updated_at = now()
		WHERE id=$1`, t.OrderID, t.To, t.Paid, t.PaymentID)
	if err != nil {
		return err
	}

	if t.ReleaseStock {
		if err := inventory.ReleaseOrderTx(ctx, tx, t.OrderID); err != nil {
			return err
		}
	}

	if t.PaymentID != "" {
		if _, err := tx.Exec(ctx, `
			INSERT INTO processed_payments(payment_id, order_id)
			VALUES ($1, $2) ON CONFLICT (payment_id) DO NOTHING`, t.PaymentID, t.OrderID); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Cancel releases every reserved quantity and marks the order cancelled in
// one transaction. Only awaiting_payment and payment_approved orders may be
// cancelled; a second attempt fails the status check.
func (r *Repo) Cancel(ctx context.Context, orderID string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var cur Status
	err = tx.QueryRow(ctx, `SELECT status FROM orders WHERE id=$1 FOR UPDATE`, orderID).Scan(&cur)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if !cur.Cancellable() {
		return ErrInvalidTransition
	}
	if err := inventory.ReleaseOrderTx(ctx, tx, orderID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE orders SET status=$2, paid=false, updated_at=now() WHERE id=$1`,
		orderID, StatusCancelled); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListStuck returns orders sitting in a pending-like status since before the
// cutoff, for the reconciler's bulk reprocess pass.
func (r *Repo) ListStuck(ctx context.Context, olderThan time.Duration, limit int) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, status, COALESCE(preference_id,''), COALESCE(payment_id,'')
		FROM orders
		WHERE status IN ($1, $2) AND updated_at < $3
		ORDER BY updated_at
		LIMIT $4`,
		StatusAwaitingPayment, StatusPaymentRejected, time.Now().Add(-olderThan), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.Status, &o.PreferenceID, &o.PaymentID); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
