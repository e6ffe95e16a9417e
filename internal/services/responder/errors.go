package responder

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type ErrorType string

const (
	ErrTypeConfig  ErrorType = "CONFIG"
	ErrTypeTimeout ErrorType = "TIMEOUT"
	ErrTypeNetwork ErrorType = "NETWORK"
	ErrTypeStatus  ErrorType = "STATUS"
	ErrTypeDecode  ErrorType = "DECODE"
)

type ResponderError struct {
	Type      ErrorType
	Code      int
	Message   string
	Operation string
	Cause     error
}

func (e *ResponderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("Responder %s error in %s: %s (caused by: %v)",
			e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("Responder %s error in %s: %s", e.Type, e.Operation, e.Message)
}

func (e *ResponderError) Unwrap() error {
	return e.Cause
}

func NewConfigError(msg string) *ResponderError {
	return &ResponderError{Type: ErrTypeConfig, Message: msg, Operation: "config"}
}

func NewStatusError(operation string, code int) *ResponderError {
	return &ResponderError{
		Type:      ErrTypeStatus,
		Code:      code,
		Operation: operation,
		Message:   fmt.Sprintf("unexpected status %d", code),
	}
}

func NewDecodeError(operation, msg string, cause error) *ResponderError {
	return &ResponderError{Type: ErrTypeDecode, Operation: operation, Message: msg, Cause: cause}
}

// NewTransportError classifies a failed round trip as a timeout or a network error.
func NewTransportError(operation string, cause error) *ResponderError {
	if isTimeout(cause) {
		return &ResponderError{Type: ErrTypeTimeout, Operation: operation, Message: "request timed out", Cause: cause}
	}
	return &ResponderError{Type: ErrTypeNetwork, Operation: operation, Message: "request failed", Cause: cause}
}

// IsTimeout reports whether err came from the responder deadline expiring.
func IsTimeout(err error) bool {
	var re *ResponderError
	if errors.As(err, &re) {
		return re.Type == ErrTypeTimeout
	}
	return isTimeout(err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// FallbackMessage is the assistant text stored in place of a reply when the responder fails.
// It never carries raw transport error text.
func FallbackMessage(err error) string {
	var re *ResponderError
	if !errors.As(err, &re) {
		if isTimeout(err) {
			return "The AI service did not respond in time. Please try again."
		}
		return "Error connecting to AI service. Please try again."
	}

	switch re.Type {
	case ErrTypeTimeout:
		return "The AI service did not respond in time. Please try again."
	case ErrTypeStatus:
		return fmt.Sprintf("AI service returned status %d.", re.Code)
	case ErrTypeDecode:
		return "Error processing AI response."
	default:
		return "Error connecting to AI service. Please try again."
	}
}
