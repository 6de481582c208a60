package services

import "fmt"

// ErrorKind is the closed taxonomy of domain failures. Validation and
// not-found kinds are caller mistakes and are never retried; provider errors
// are safe to retry with a fresh payment attempt.
type ErrorKind string

const (
	ErrTableUnavailable     ErrorKind = "table_unavailable"
	ErrProductUnavailable   ErrorKind = "product_unavailable"
	ErrInvalidTransition    ErrorKind = "invalid_transition"
	ErrOrderLocked          ErrorKind = "order_locked"
	ErrOrderAlreadySettled  ErrorKind = "order_already_settled"
	ErrRefundNotAllowed     ErrorKind = "refund_not_allowed"
	ErrOrderNotFound        ErrorKind = "order_not_found"
	ErrTableNotFound        ErrorKind = "table_not_found"
	ErrPaymentNotFound      ErrorKind = "payment_not_found"
	ErrPaymentProviderError ErrorKind = "payment_provider_error"
)

// DomainError carries the failure kind plus the authoritative current state
// of the entity involved, so clients can resynchronize instead of retrying
// blindly.
type DomainError struct {
	Kind    ErrorKind
	Message string
	// State is the entity's current status at the time of the failure, when
	// one is relevant (e.g. the order status that rejected a transition).
	State string
}

func (e *DomainError) Error() string {
	if e.State != "" {
		return fmt.Sprintf("%s: %s (current state: %s)", e.Kind, e.Message, e.State)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// IsKind reports whether err is a DomainError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	de, ok := err.(*DomainError)
	return ok && de.Kind == kind
}

func domainErr(kind ErrorKind, format string, args ...any) *DomainError {
	return &DomainError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func domainErrState(kind ErrorKind, state, format string, args ...any) *DomainError {
	return &DomainError{Kind: kind, Message: fmt.Sprintf(format, args...), State: state}
}
