package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

var ErrUnknownProduct = errors.New("unknown product")

// LockedProduct is a product row held under a row-level lock for the duration
// of the caller's transaction. Price, name and sku are read under the same
// lock so checkout freezes a consistent snapshot.
type LockedProduct struct {
	SKU        string
	Name       string
	PriceCents int
	Stock      int
	Available  bool
}

// LockProduct takes the row lock that serializes concurrent reservations on
// the same product.
func LockProduct(ctx context.Context, tx pgx.Tx, productID string) (*LockedProduct, error) {
	var p LockedProduct
	err := tx.QueryRow(ctx, `SELECT sku, name, price_cents, stock, available
	                         FROM products WHERE id=$1 FOR UPDATE`, productID).
		Scan(&p.SKU, &p.Name, &p.PriceCents, &p.Stock, &p.Available)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUnknownProduct
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ReserveTx decrements stock for a product already locked by LockProduct in
// the same transaction. The row lock serializes concurrent checkouts on the
// same product, so when two race for the last unit the loser re-reads after
// the winner's commit and sees the decremented count; the WHERE guard is the
// last line of defense against the counter going negative.
func ReserveTx(ctx context.Context, tx pgx.Tx, productID string, qty int) (bool, error) {
	ct, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now()
	                         WHERE id=$1 AND stock >= $2`, productID, qty)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// ReleaseOrderTx returns every quantity reserved for the order back to stock.
// The increment is unconditional; callers must not release the same order
// twice, which the status machine enforces.
func ReleaseOrderTx(ctx context.Context, tx pgx.Tx, orderID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE products p
		SET stock = p.stock + oi.qty, updated_at = now()
		FROM order_items oi
		WHERE oi.order_id = $1 AND oi.product_id = p.id`, orderID)
	return err
}
