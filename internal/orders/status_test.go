package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusAwaitingPayment, StatusPaymentApproved, true},
		{StatusAwaitingPayment, StatusPaymentRejected, true},
		{StatusAwaitingPayment, StatusCancelled, true},
		{StatusAwaitingPayment, StatusShipped, false},
		{StatusPaymentRejected, StatusPaymentApproved, true},
		{StatusPaymentRejected, StatusAwaitingPayment, true},
		{StatusPaymentApproved, StatusProcessing, true},
		{StatusPaymentApproved, StatusRefunded, true},
		{StatusPaymentApproved, StatusAwaitingPayment, false},
		{StatusProcessing, StatusShipped, true},
		{StatusProcessing, StatusCancelled, false},
		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusRefunded, false},
		{StatusDelivered, StatusRefunded, false},
		{StatusCancelled, StatusPaymentApproved, false},
		{StatusRefunded, StatusAwaitingPayment, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestPaymentFinal(t *testing.T) {
	final := []Status{StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded}
	for _, s := range final {
		assert.True(t, s.PaymentFinal(), "%s", s)
	}
	open := []Status{StatusAwaitingPayment, StatusPaymentApproved, StatusPaymentRejected, StatusProcessing}
	for _, s := range open {
		assert.False(t, s.PaymentFinal(), "%s", s)
	}
}

func TestCancellable(t *testing.T) {
	assert.True(t, StatusAwaitingPayment.Cancellable())
	assert.True(t, StatusPaymentApproved.Cancellable())
	assert.False(t, StatusShipped.Cancellable())
	assert.False(t, StatusCancelled.Cancellable())
	assert.False(t, StatusProcessing.Cancellable())
}

func TestShippingPolicy(t *testing.T) {
	p := ShippingPolicy{Cents: 1500, FreeOverCents: 15000}
	assert.Equal(t, 1500, p.For(14999))
	assert.Equal(t, 0, p.For(15000))
	assert.Equal(t, 0, p.For(20000))

	noFree := ShippingPolicy{Cents: 1500}
	assert.Equal(t, 1500, noFree.For(1_000_000))
}
