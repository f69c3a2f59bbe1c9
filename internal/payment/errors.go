package payment

import "fmt"

type ErrorKind int

const (
	// KindUnavailable covers transient boundary failures (connection errors,
	// gateway 5xx); retried with backoff before surfacing.
	KindUnavailable ErrorKind = iota
	// KindTimeout is a bounded-call deadline expiring.
	KindTimeout
	// KindRejected means the gateway declined the request itself (bad
	// credentials, malformed payload); never retried.
	KindRejected
)

func (k ErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindRejected:
		return "rejected"
	default:
		return "unavailable"
	}
}

type GatewayError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway %s (http %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway %s: %s", e.Kind, e.Message)
}

// Transient reports whether retrying the same call can reasonably succeed.
func (e *GatewayError) Transient() bool {
	return e.Kind != KindRejected
}
