package cart

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

func (r *Repo) GetOrCreateForUser(ctx context.Context, userID string) (*Cart, error) {
	return r.getOrCreate(ctx, `SELECT id, COALESCE(user_id,''), COALESCE(session_id,''), created_at FROM carts WHERE user_id=$1`,
		`INSERT INTO carts(id, user_id) VALUES ($1, $2)`, userID)
}

func (r *Repo) GetOrCreateForSession(ctx context.Context, sessionID string) (*Cart, error) {
	return r.getOrCreate(ctx, `SELECT id, COALESCE(user_id,''), COALESCE(session_id,''), created_at FROM carts WHERE session_id=$1`,
		`INSERT INTO carts(id, session_id) VALUES ($1, $2)`, sessionID)
}

func (r *Repo) getOrCreate(ctx context.Context, sel, ins, owner string) (*Cart, error) {
	var c Cart
	err := r.DB.QueryRow(ctx, sel, owner).Scan(&c.ID, &c.UserID, &c.SessionID, &c.CreatedAt)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	id := uuid.NewString()
	if _, err := r.DB.Exec(ctx, ins, id, owner); err != nil {
		return nil, err
	}
	// re-read to survive a concurrent create racing on the owner unique index
	err = r.DB.QueryRow(ctx, sel, owner).Scan(&c.ID, &c.UserID, &c.SessionID, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) FindBySession(ctx context.Context, sessionID string) (*Cart, error) {
	var c Cart
	err := r.DB.QueryRow(ctx, `SELECT id, COALESCE(user_id,''), COALESCE(session_id,''), created_at
                               FROM carts WHERE session_id=$1`, sessionID).
		Scan(&c.ID, &c.UserID, &c.SessionID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) LineQty(ctx context.Context, cartID, productID string) (int, error) {
	var qty int
	err := r.DB.QueryRow(ctx, `SELECT qty FROM cart_items WHERE cart_id=$1 AND product_id=$2`, cartID, productID).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return qty, nil
}

func (r *Repo) SetLine(ctx context.Context, cartID, productID string, qty int) error {
	if qty <= 0 {
		_, err := r.DB.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1 AND product_id=$2`, cartID, productID)
		return err
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO cart_items(cart_id, product_id, qty)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET qty = EXCLUDED.qty
	`, cartID, productID, qty)
	return err
}

func (r *Repo) Lines(ctx context.Context, cartID string) ([]Line, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT ci.product_id, ci.qty, p.name, p.price_cents
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id=$1
		ORDER BY p.sku`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var ln Line
		if err := rows.Scan(&ln.ProductID, &ln.Qty, &ln.Name, &ln.PriceCents); err != nil {
			return nil, err
		}
		out = append(out, ln)
	}
	return out, rows.Err()
}

func (r *Repo) Delete(ctx context.Context, cartID string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, cartID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM carts WHERE id=$1`, cartID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
