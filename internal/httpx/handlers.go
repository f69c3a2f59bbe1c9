package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/adisetyo/go-storefront-orders/internal/cart"
	"github.com/adisetyo/go-storefront-orders/internal/catalog"
	"github.com/adisetyo/go-storefront-orders/internal/orders"
	"github.com/adisetyo/go-storefront-orders/internal/payment"
	"github.com/adisetyo/go-storefront-orders/internal/redisx"
)

// Identity comes from headers; authentication itself lives in front of this
// service.
const (
	headerUserID    = "X-User-Id"
	headerSessionID = "X-Session-Id"
)

type StoreHandler struct {
	Carts     *cart.Service
	CartStore cart.Store
	Orders    *orders.Service
	OrderRepo *orders.Repo
	Catalog   *catalog.Repo
	Redis     *redis.Client
}

func (h *StoreHandler) Register(r *chi.Mux) {
	r.Get("/products", h.listProducts)
	r.Get("/cart", h.getCart)
	r.Post("/cart/items", h.addItem)
	r.Delete("/cart/items/{productID}", h.removeItem)
	r.Post("/cart/merge", h.mergeCart)
	r.Post("/checkout", h.checkout)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/pay", h.payOrder)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *StoreHandler) resolveCart(w http.ResponseWriter, r *http.Request) (*cart.Cart, bool) {
	ctx := r.Context()
	if userID := r.Header.Get(headerUserID); userID != "" {
		c, err := h.CartStore.GetOrCreateForUser(ctx, userID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return nil, false
		}
		return c, true
	}
	if sessionID := r.Header.Get(headerSessionID); sessionID != "" {
		c, err := h.CartStore.GetOrCreateForSession(ctx, sessionID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return nil, false
		}
		return c, true
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing " + headerUserID + " or " + headerSessionID})
	return nil, false
}

func (h *StoreHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.ListProducts(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *StoreHandler) getCart(w http.ResponseWriter, r *http.Request) {
	c, ok := h.resolveCart(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	lines, err := h.CartStore.Lines(ctx, c.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	totals, err := h.Carts.Totals(ctx, c.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cart_id": c.ID, "lines": lines, "totals": totals})
}

type addItemReq struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

func (h *StoreHandler) addItem(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Qty == 0 {
		req.Qty = 1
	}
	c, ok := h.resolveCart(w, r)
	if !ok {
		return
	}

	err := h.Carts.AddLine(r.Context(), c.ID, req.ProductID, req.Qty)
	var oos *cart.OutOfStockError
	switch {
	case errors.As(err, &oos):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "out_of_stock", "product_id": oos.ProductID,
			"requested": oos.Requested, "available": oos.Available,
		})
	case errors.Is(err, cart.ErrQuantityBounds):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "quantity out of bounds"})
	case errors.Is(err, catalog.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
	}
}

func (h *StoreHandler) removeItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	dec := 1
	if q := r.URL.Query().Get("qty"); q != "" {
		if n, err := strconv.Atoi(q); err == nil {
			dec = n
		}
	}
	c, ok := h.resolveCart(w, r)
	if !ok {
		return
	}
	if err := h.Carts.RemoveLine(r.Context(), c.ID, productID, dec); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

type mergeReq struct {
	SessionID string `json:"session_id"`
}

// mergeCart folds an anonymous session cart into the logged-in user's cart.
func (h *StoreHandler) mergeCart(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(headerUserID)
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing " + headerUserID})
		return
	}
	var req mergeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	c, err := h.Carts.MergeInto(r.Context(), req.SessionID, userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"cart_id": c.ID})
}

func (h *StoreHandler) checkout(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(headerUserID)
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing " + headerUserID})
		return
	}
	var d orders.Delivery
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	c, err := h.CartStore.GetOrCreateForUser(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	res, err := h.Orders.Checkout(ctx, c.ID, userID, d)
	if err != nil {
		h.writeCheckoutError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *StoreHandler) writeCheckoutError(w http.ResponseWriter, err error) {
	var (
		verr *orders.ValidationError
		oos  *orders.OutOfStockError
		gerr *payment.GatewayError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing_fields", "fields": verr.Missing})
	case errors.As(err, &oos):
		writeJSON(w, http.StatusConflict, map[string]any{"error": "out_of_stock", "details": oos.Shortages})
	case errors.Is(err, orders.ErrEmptyCart):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cart is empty"})
	case errors.As(err, &gerr):
		// the order and its reservation survive; the shopper can retry payment
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "payment_gateway_" + gerr.Kind.String()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (h *StoreHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(s))
			return
		}
	}

	o, err := h.OrderRepo.FindByID(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	body := map[string]any{"id": o.ID, "status": o.Status, "paid": o.Paid, "total_cents": o.TotalCents}
	b, _ := json.Marshal(body)
	if h.Redis != nil {
		_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// payOrder re-attempts payment-intent creation for an order the shopper
// cannot pay: checkout created it but the gateway call failed, or the
// previous payment was rejected.
func (h *StoreHandler) payOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	res, err := h.Orders.RetryPayment(ctx, orderID)
	switch {
	case errors.Is(err, orders.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, orders.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order is not awaiting payment"})
	case err != nil:
		h.writeCheckoutError(w, err)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *StoreHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	err := h.Orders.Cancel(r.Context(), orderID)
	switch {
	case errors.Is(err, orders.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case errors.Is(err, orders.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "order not cancellable in its current status"})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		if h.Redis != nil {
			_ = h.Redis.Del(r.Context(), fmt.Sprintf(redisx.KeyOrderStatus, orderID)).Err()
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
	}
}
