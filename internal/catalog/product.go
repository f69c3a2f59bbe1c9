package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("product not found")

// Product is the read model of the external catalog. Stock is mutated only
// through the inventory reservation/release paths, never through this package.
type Product struct {
	ID         string    `json:"id"`
	SKU        string    `json:"sku"`
	Name       string    `json:"name"`
	PriceCents int       `json:"price_cents"`
	Stock      int       `json:"stock"`
	Available  bool      `json:"available"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) GetProduct(ctx context.Context, id string) (*Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `SELECT id, sku, name, price_cents, stock, available, created_at, updated_at
                               FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.PriceCents, &p.Stock, &p.Available, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, sku, name, price_cents, stock, available, created_at, updated_at
                                  FROM products WHERE available ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.PriceCents, &p.Stock, &p.Available, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
