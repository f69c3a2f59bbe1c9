package orders

type Status string

const (
	StatusAwaitingPayment Status = "awaiting_payment"
	StatusPaymentApproved Status = "payment_approved"
	StatusPaymentRejected Status = "payment_rejected"
	StatusProcessing      Status = "processing"
	StatusShipped         Status = "shipped"
	StatusDelivered       Status = "delivered"
	StatusCancelled       Status = "cancelled"
	StatusRefunded        Status = "refunded"
)

var validNext = map[Status]map[Status]bool{
	StatusAwaitingPayment: {StatusPaymentApproved: true, StatusPaymentRejected: true, StatusCancelled: true},
	StatusPaymentRejected: {StatusPaymentApproved: true, StatusAwaitingPayment: true, StatusCancelled: true},
	StatusPaymentApproved: {StatusProcessing: true, StatusShipped: true, StatusCancelled: true, StatusRefunded: true},
	StatusProcessing:      {StatusShipped: true, StatusRefunded: true},
	StatusShipped:         {StatusDelivered: true},
	StatusDelivered:       {},
	StatusCancelled:       {},
	StatusRefunded:        {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// PaymentFinal reports whether a late gateway callback may still change this
// order. Shipped and delivered orders are final for payment purposes even
// though shipped→delivered remains a legal operational transition.
func (s Status) PaymentFinal() bool {
	switch s {
	case StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Cancellable statuses are the only ones an explicit cancellation may leave.
func (s Status) Cancellable() bool {
	return s == StatusAwaitingPayment || s == StatusPaymentApproved
}
