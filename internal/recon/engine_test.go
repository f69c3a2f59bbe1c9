package recon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adisetyo/go-storefront-orders/internal/invoice"
	"github.com/adisetyo/go-storefront-orders/internal/orders"
	"github.com/adisetyo/go-storefront-orders/internal/payment"
)

// fakeStore mirrors the repo's transactional semantics in memory: the
// transition, the idempotency record and the release flag land together or
// not at all.
type fakeStore struct {
	orders    map[string]*orders.Order
	processed map[string]bool

	transitions []orders.Transition
	released    []string
	invoiceSet  map[string]string // orderID -> "number/status"
	stuck       []orders.Order
}

func newFakeStore(os ...*orders.Order) *fakeStore {
	s := &fakeStore{
		orders:     map[string]*orders.Order{},
		processed:  map[string]bool{},
		invoiceSet: map[string]string{},
	}
	for _, o := range os {
		s.orders[o.ID] = o
	}
	return s
}

func (s *fakeStore) PaymentProcessed(ctx context.Context, paymentID string) (bool, error) {
	return s.processed[paymentID], nil
}

func (s *fakeStore) FindByID(ctx context.Context, id string) (*orders.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, orders.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *fakeStore) ApplyTransition(ctx context.Context, t orders.Transition) error {
	o, ok := s.orders[t.OrderID]
	if !ok {
		return orders.ErrNotFound
	}
	if !orders.CanTransition(o.Status, t.To) {
		return orders.ErrInvalidTransition
	}
	o.Status = t.To
	o.Paid = t.Paid
	if t.PaymentID != "" {
		o.PaymentID = t.PaymentID
		s.processed[t.PaymentID] = true
	}
	if t.ReleaseStock {
		s.released = append(s.released, t.OrderID)
	}
	s.transitions = append(s.transitions, t)
	return nil
}

func (s *fakeStore) SetInvoice(ctx context.Context, orderID, number, status string) error {
	s.invoiceSet[orderID] = number + "/" + status
	return nil
}

func (s *fakeStore) ListStuck(ctx context.Context, olderThan time.Duration, limit int) ([]orders.Order, error) {
	return s.stuck, nil
}

type fakeGateway struct {
	payments map[string]*payment.Payment
	byRef    map[string]*payment.Payment
	fetchErr error
}

func (g *fakeGateway) FetchPayment(ctx context.Context, paymentID string) (*payment.Payment, error) {
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	p, ok := g.payments[paymentID]
	if !ok {
		return nil, &payment.GatewayError{Kind: payment.KindRejected, StatusCode: 404}
	}
	return p, nil
}

func (g *fakeGateway) SearchPaymentByReference(ctx context.Context, ref string) (*payment.Payment, error) {
	return g.byRef[ref], nil
}

type fakeCache struct {
	keys map[string]bool
	dels []string
}

func newFakeCache() *fakeCache { return &fakeCache{keys: map[string]bool{}} }

func (c *fakeCache) Exists(ctx context.Context, key string) bool { return c.keys[key] }

func (c *fakeCache) Set(ctx context.Context, key string, ttl time.Duration) { c.keys[key] = true }

func (c *fakeCache) Del(ctx context.Context, key string) {
	delete(c.keys, key)
	c.dels = append(c.dels, key)
}

type fakeDispatcher struct {
	events []string
}

func (f *fakeDispatcher) Enqueue(eventType, orderID string, kv map[string]string) {
	f.events = append(f.events, eventType)
}

type fakeInvoicer struct {
	inv    *invoice.Invoice
	err    error
	issued int
}

func (f *fakeInvoicer) Issue(ctx context.Context, o *orders.Order) (*invoice.Invoice, error) {
	f.issued++
	return f.inv, f.err
}

func awaitingOrder(id string) *orders.Order {
	return &orders.Order{ID: id, Email: "ana@example.com", Status: orders.StatusAwaitingPayment, TotalCents: 10000}
}

func TestProcessPaymentApproved(t *testing.T) {
	store := newFakeStore(awaitingOrder("ord-1"))
	gw := &fakeGateway{payments: map[string]*payment.Payment{
		"pay-1": {ID: "pay-1", Status: payment.StatusApproved, ExternalReference: "ord-1"},
	}}
	disp := &fakeDispatcher{}
	inv := &fakeInvoicer{inv: &invoice.Invoice{Number: "NF-77", Status: "issued"}}
	e := &Engine{Store: store, Gateway: gw, Notify: disp, Invoicer: inv}

	out, err := e.ProcessPayment(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)

	o := store.orders["ord-1"]
	assert.Equal(t, orders.StatusPaymentApproved, o.Status)
	assert.True(t, o.Paid)
	assert.Equal(t, "pay-1", o.PaymentID)
	assert.Empty(t, store.released)
	assert.Equal(t, []string{"payment_approved"}, disp.events)
	assert.Equal(t, 1, inv.issued)
	assert.Equal(t, "NF-77/issued", store.invoiceSet["ord-1"])
}

func TestProcessPaymentDuplicateReplay(t *testing.T) {
	store := newFakeStore(awaitingOrder("ord-1"))
	gw := &fakeGateway{payments: map[string]*payment.Payment{
		"pay-1": {ID: "pay-1", Status: payment.StatusApproved, ExternalReference: "ord-1"},
	}}
	disp := &fakeDispatcher{}
	inv := &fakeInvoicer{inv: &invoice.Invoice{Number: "NF-77", Status: "issued"}}
	e := &Engine{Store: store, Gateway: gw, Notify: disp, Invoicer: inv}

	out, err := e.ProcessPayment(context.Background(), "pay-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, out)

	// redelivery of the same payment id does nothing a second time
	for i := 0; i < 3; i++ {
		out, err = e.ProcessPayment(context.Background(), "pay-1")
		require.NoError(t, err)
		assert.Equal(t, OutcomeDuplicate, out)
	}
	assert.Len(t, store.transitions, 1)
	assert.Len(t, disp.events, 1)
	assert.Equal(t, 1, inv.issued)
}

func TestProcessPaymentInvalidatesStatusCache(t *testing.T) {
	store := newFakeStore(awaitingOrder("ord-1"))
	gw := &fakeGateway{payments: map[string]*payment.Payment{
		"pay-1": {ID: "pay-1", Status: payment.StatusApproved, ExternalReference: "ord-1"},
	}}
	cache := newFakeCache()
	cache.keys["order_status:ord-1"] = true // stale awaiting_payment entry
	e := &Engine{Store: store, Gateway: gw, Cache: cache}

	out, err := e.ProcessPayment(context.Background(), "pay-1")
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, out)

	// the read cache no longer serves the pre-transition status
	assert.Contains(t, cache.dels, "order_status:ord-1")
	assert.False(t, cache.keys["order_status:ord-1"])
	// and the dedup marker short-circuits the next delivery
	assert.True(t, cache.keys["dedup:payment:pay-1"])
	out, err = e.ProcessPayment(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, out)
}

func TestProcessPaymentPendingRestoreInvalidatesCache(t *testing.T) {
	o := awaitingOrder("ord-1")
	o.Status = orders.StatusPaymentRejected
	store := newFakeStore(o)
	gw := &fakeGateway{payments: map[string]*payment.Payment{
		"pay-2": {ID: "pay-2", Status: payment.StatusPending, ExternalReference: "ord-1"},
	}}
	cache := newFakeCache()
	cache.keys["order_status:ord-1"] = true
	e := &Engine{Store: store, Gateway: gw, Cache: cache}

	out, err := e.ProcessPayment(context.Background(), "pay-2")
	require.NoError(t, err)
	require.Equal(t, OutcomePending, out)
	// the rejected→awaiting restore is a committed transition too
	assert.Contains(t, cache.dels, "order_status:ord-1")
}

func TestProcessPaymentRejectedKeepsReservation(t *testing.T) {
	store := newFakeStore(awaitingOrder("ord-1"))
	gw := &fakeGateway{payments: map[string]*payment.Payment{
		"pay-1": {ID: "pay-1", Status: payment.StatusRejected, ExternalReference: "ord-1"},
	}}
	disp := &fakeDispatcher{}
	e := &Engine{Store: store, Gateway: gw, Notify: disp}

	out, err := e.ProcessPayment(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)

	o := store.orders["ord-1"]
	assert.Equal(t, orders.StatusPaymentRejected, o.Status)
	assert.False(t, o.Paid)
	// the shopper may retry payment, so the reservation stays
	assert.Empty(t, store.released)
	assert.Equal(t, []string{"payment_rejected"}, disp.events)
}

func TestProcessPaymentCancelledReleasesStock(t *testing.T) {
	store := newFakeStore(awaitingOrder("ord-1"))
	gw := &fakeGateway{payments: map[string]*payment.Payment{
		"pay-1": {ID: "pay-1", Status: payment.StatusCancelled, ExternalReference: "ord-1"},
	}}
	e := &Engine{Store: store, Gateway: gw}

	out, err := e.ProcessPayment(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)
	assert.Equal(t, orders.StatusCancelled, store.orders["ord-1"].Status)
	assert.Equal(t, []string{"ord-1"}, store.released)
}

func TestProcessPaymentUnknownOrder(t *testing.T) {
	store := newFakeStore()
	gw := &fakeGateway{payments: map[string]*payment.Payment{
		"pay-1": {ID: "pay-1", Status: payment.StatusApproved, ExternalReference: "ghost"},
		"pay-2": {ID: "pay-2", Status: payment.StatusApproved},
	}}
	e := &Engine{Store: store, Gateway: gw}

	// unknown order id and missing reference are both absorbed, never errors
	out, err := e.ProcessPayment(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeOrderNotFound, out)

	out, err = e.ProcessPayment(context.Background(), "pay-2")
	require.NoError(t, err)
	assert.Equal(t, OutcomeOrderNotFound, out)
	assert.Empty(t, store.transitions)
}

func TestProcessPaymentFinalizedOrder(t *testing.T) {
	o := awaitingOrder("ord-1")
	o.Status = orders.StatusShipped
	store := newFakeStore(o)
	gw := &fakeGateway{payments: map[string]*payment.Payment{
		"pay-9": {ID: "pay-9", Status: payment.StatusRejected, ExternalReference: "ord-1"},
	}}
	e := &Engine{Store: store, Gateway: gw}

	out, err := e.ProcessPayment(context.Background(), "pay-9")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFinalized, out)
	assert.Equal(t, orders.StatusShipped, store.orders["ord-1"].Status)
}

func TestProcessPaymentPendingWritesNoRecord(t *testing.T) {
	store := newFakeStore(awaitingOrder("ord-1"))
	gw := &fakeGateway{payments: map[string]*payment.Payment{
		"pay-1": {ID: "pay-1", Status: payment.StatusInProcess, ExternalReference: "ord-1"},
	}}
	e := &Engine{Store: store, Gateway: gw}

	out, err := e.ProcessPayment(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, out)
	assert.False(t, store.processed["pay-1"])

	// the same payment id settles later and still lands
	gw.payments["pay-1"].Status = payment.StatusApproved
	out, err = e.ProcessPayment(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out)
	assert.Equal(t, orders.StatusPaymentApproved, store.orders["ord-1"].Status)
}

func TestProcessPaymentPendingRetryAfterRejection(t *testing.T) {
	o := awaitingOrder("ord-1")
	o.Status = orders.StatusPaymentRejected
	store := newFakeStore(o)
	gw := &fakeGateway{payments: map[string]*payment.Payment{
		"pay-2": {ID: "pay-2", Status: payment.StatusPending, ExternalReference: "ord-1"},
	}}
	e := &Engine{Store: store, Gateway: gw}

	out, err := e.ProcessPayment(context.Background(), "pay-2")
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, out)
	// a fresh payment attempt moves the order back to awaiting
	assert.Equal(t, orders.StatusAwaitingPayment, store.orders["ord-1"].Status)
	assert.False(t, store.processed["pay-2"])
}

func TestProcessPaymentInvalidTransitionIgnored(t *testing.T) {
	o := awaitingOrder("ord-1")
	o.Status = orders.StatusProcessing
	store := newFakeStore(o)
	gw := &fakeGateway{payments: map[string]*payment.Payment{
		"pay-1": {ID: "pay-1", Status: payment.StatusRejected, ExternalReference: "ord-1"},
	}}
	e := &Engine{Store: store, Gateway: gw}

	out, err := e.ProcessPayment(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, out)
	assert.Equal(t, orders.StatusProcessing, store.orders["ord-1"].Status)
}

func TestProcessPaymentGatewayError(t *testing.T) {
	store := newFakeStore(awaitingOrder("ord-1"))
	gw := &fakeGateway{fetchErr: &payment.GatewayError{Kind: payment.KindUnavailable, StatusCode: 503}}
	e := &Engine{Store: store, Gateway: gw}

	out, err := e.ProcessPayment(context.Background(), "pay-1")
	require.Error(t, err)
	assert.Equal(t, OutcomeNone, out)
	var gerr *payment.GatewayError
	assert.ErrorAs(t, err, &gerr)
}

func TestProcessPaymentInvoiceFailureRecorded(t *testing.T) {
	store := newFakeStore(awaitingOrder("ord-1"))
	gw := &fakeGateway{payments: map[string]*payment.Payment{
		"pay-1": {ID: "pay-1", Status: payment.StatusApproved, ExternalReference: "ord-1"},
	}}
	inv := &fakeInvoicer{err: errors.New("olist down")}
	e := &Engine{Store: store, Gateway: gw, Invoicer: inv}

	out, err := e.ProcessPayment(context.Background(), "pay-1")
	require.NoError(t, err)
	// the transition sticks even when invoicing fails
	assert.Equal(t, OutcomeApplied, out)
	assert.Equal(t, orders.StatusPaymentApproved, store.orders["ord-1"].Status)
	assert.Equal(t, "/failed", store.invoiceSet["ord-1"])
}

func TestReprocessPending(t *testing.T) {
	withID := awaitingOrder("ord-1")
	withID.PaymentID = "pay-1"
	noPayment := awaitingOrder("ord-2")
	neverPaid := awaitingOrder("ord-3")

	store := newFakeStore(withID, noPayment, neverPaid)
	store.stuck = []orders.Order{*withID, *noPayment, *neverPaid}
	gw := &fakeGateway{
		payments: map[string]*payment.Payment{
			"pay-1": {ID: "pay-1", Status: payment.StatusApproved, ExternalReference: "ord-1"},
			"pay-2": {ID: "pay-2", Status: payment.StatusApproved, ExternalReference: "ord-2"},
		},
		byRef: map[string]*payment.Payment{
			"ord-2": {ID: "pay-2", Status: payment.StatusApproved, ExternalReference: "ord-2"},
		},
	}
	e := &Engine{Store: store, Gateway: gw}

	applied, err := e.ReprocessPending(context.Background(), 30*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	assert.Equal(t, orders.StatusPaymentApproved, store.orders["ord-1"].Status)
	assert.Equal(t, orders.StatusPaymentApproved, store.orders["ord-2"].Status)
	// ord-3 has no payment at the gateway and is left alone
	assert.Equal(t, orders.StatusAwaitingPayment, store.orders["ord-3"].Status)
}
