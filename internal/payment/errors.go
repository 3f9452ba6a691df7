package payment

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a payment failure for callers and redirect targets.
type Kind string

const (
	KindNotConfigured        Kind = "NOT_CONFIGURED"
	KindAuth                 Kind = "AUTH_ERROR"
	KindIntentCreationFailed Kind = "INTENT_CREATION_FAILED"
	KindVerification         Kind = "VERIFICATION_ERROR"
	KindPaymentNotCleared    Kind = "PAYMENT_NOT_CLEARED"
	KindInvalidCallback      Kind = "INVALID_CALLBACK"
	KindInternal             Kind = "INTERNAL_ERROR"
)

// Error is a payment failure with a kind. Err carries the underlying cause
// for logs and is never shown to the payer.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an Error of the given kind.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal for anything else.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to the status returned by JSON endpoints.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotConfigured:
		return http.StatusServiceUnavailable
	case KindAuth, KindIntentCreationFailed, KindVerification:
		return http.StatusBadGateway
	case KindPaymentNotCleared:
		return http.StatusPaymentRequired
	case KindInvalidCallback:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Reason is the short text shown to the payer.
func (k Kind) Reason() string {
	switch k {
	case KindNotConfigured:
		return "This payment method is not configured."
	case KindAuth:
		return "Could not connect to the payment provider."
	case KindIntentCreationFailed:
		return "The payment could not be started. Please try again."
	case KindVerification:
		return "The payment could not be verified. Please try again later."
	case KindPaymentNotCleared:
		return "The payment has not been completed."
	case KindInvalidCallback:
		return "Invalid payment response."
	default:
		return "An unexpected error occurred while processing the payment."
	}
}
