package orders

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEmptyCart         = errors.New("cart is empty")
)

// OutOfStockError identifies every line that could not be reserved; the whole
// checkout was rolled back.
type OutOfStockError struct {
	Shortages []StockShortage
}

func (e *OutOfStockError) Error() string {
	ids := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		ids = append(ids, s.ProductID)
	}
	return fmt.Sprintf("out of stock: %s", strings.Join(ids, ", "))
}

type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing delivery fields: %s", strings.Join(e.Missing, ", "))
}
