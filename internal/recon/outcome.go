package recon

// Outcome classifies what a webhook delivery did. Duplicates, unknown orders
// and finalized orders are expected results of at-least-once delivery, not
// errors; only infrastructure failures come back on the error channel.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeApplied
	OutcomeDuplicate
	OutcomeOrderNotFound
	OutcomeFinalized
	OutcomePending
	OutcomeIgnored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeOrderNotFound:
		return "order_not_found"
	case OutcomeFinalized:
		return "finalized"
	case OutcomePending:
		return "pending"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "none"
	}
}
