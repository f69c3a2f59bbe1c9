package redisx

import "time"

const (
	// Fast-path dedup for gateway webhook deliveries:
	// dedup:payment:{payment_id} -> "1". The processed_payments table stays
	// authoritative; this only short-circuits retry storms.
	KeyPaymentSeen = "dedup:payment:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "paid": ...}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing in the notifier: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLPaymentSeen = 48 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
