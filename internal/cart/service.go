package cart

import (
	"context"
	"errors"

	"github.com/adisetyo/go-storefront-orders/internal/catalog"
)

type Service struct {
	Store      Store
	Catalog    Catalog
	MaxLineQty int
}

// AddLine creates or increments a line. The check against stock here is only
// a courtesy for the shopper; the authoritative reservation happens inside
// the checkout transaction.
func (s *Service) AddLine(ctx context.Context, cartID, productID string, qty int) error {
	if qty < 1 {
		return ErrQuantityBounds
	}
	p, err := s.Catalog.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	cur, err := s.Store.LineQty(ctx, cartID, productID)
	if err != nil {
		return err
	}
	want := cur + qty
	if s.MaxLineQty > 0 && want > s.MaxLineQty {
		return ErrQuantityBounds
	}
	if !p.Available {
		return &OutOfStockError{ProductID: productID, Requested: want, Available: 0}
	}
	if want > p.Stock {
		return &OutOfStockError{ProductID: productID, Requested: want, Available: p.Stock}
	}
	return s.Store.SetLine(ctx, cartID, productID, want)
}

// RemoveLine decrements the line, deleting it at zero. A missing line is a
// no-op, never an error.
func (s *Service) RemoveLine(ctx context.Context, cartID, productID string, dec int) error {
	if dec < 1 {
		dec = 1
	}
	cur, err := s.Store.LineQty(ctx, cartID, productID)
	if err != nil {
		return err
	}
	if cur == 0 {
		return nil
	}
	return s.Store.SetLine(ctx, cartID, productID, cur-dec)
}

// MergeInto combines an anonymous session cart into the authenticated user's
// cart on login: quantities are summed per product and re-clamped to current
// stock, then the session cart is deleted.
func (s *Service) MergeInto(ctx context.Context, sessionID, userID string) (*Cart, error) {
	dst, err := s.Store.GetOrCreateForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	src, err := s.Store.FindBySession(ctx, sessionID)
	if err != nil || src == nil {
		return dst, err
	}
	lines, err := s.Store.Lines(ctx, src.ID)
	if err != nil {
		return nil, err
	}
	for _, ln := range lines {
		cur, err := s.Store.LineQty(ctx, dst.ID, ln.ProductID)
		if err != nil {
			return nil, err
		}
		p, err := s.Catalog.GetProduct(ctx, ln.ProductID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				continue // product gone from the catalog, drop the line
			}
			return nil, err
		}
		want := cur + ln.Qty
		if want > p.Stock {
			want = p.Stock
		}
		if s.MaxLineQty > 0 && want > s.MaxLineQty {
			want = s.MaxLineQty
		}
		if want > 0 {
			if err := s.Store.SetLine(ctx, dst.ID, ln.ProductID, want); err != nil {
				return nil, err
			}
		}
	}
	if err := s.Store.Delete(ctx, src.ID); err != nil {
		return nil, err
	}
	return dst, nil
}

// Totals recomputes from current lines on every read; nothing is cached on
// the cart row.
func (s *Service) Totals(ctx context.Context, cartID string) (Totals, error) {
	lines, err := s.Store.Lines(ctx, cartID)
	if err != nil {
		return Totals{}, err
	}
	var t Totals
	for _, ln := range lines {
		t.Items += ln.Qty
		t.PriceCents += ln.PriceCents * ln.Qty
	}
	return t, nil
}
