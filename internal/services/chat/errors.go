package chat

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	ErrTypeNotFound         ErrorType = "NOT_FOUND"
	ErrTypeValidation       ErrorType = "VALIDATION"
	ErrTypeStoreUnavailable ErrorType = "STORE_UNAVAILABLE"
	ErrTypeBlobDeleteFailed ErrorType = "BLOB_DELETE_FAILED"
	ErrTypeResponderTimeout ErrorType = "RESPONDER_TIMEOUT"
	ErrTypeResponderError   ErrorType = "RESPONDER_ERROR"
)

type ChatError struct {
	Type      ErrorType
	Operation string
	Message   string
	ChatID    uint
	UserID    uint
	Cause     error
}

func (e *ChatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("Chat %s error in %s: %s (caused by: %v)",
			e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("Chat %s error in %s: %s", e.Type, e.Operation, e.Message)
}

func (e *ChatError) Unwrap() error {
	return e.Cause
}

// Is matches another *ChatError by type, so errors.Is(err, &ChatError{Type: ErrTypeNotFound}) works.
func (e *ChatError) Is(target error) bool {
	t, ok := target.(*ChatError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

func NewValidationError(operation, msg string) *ChatError {
	return &ChatError{Type: ErrTypeValidation, Operation: operation, Message: msg}
}

// NewNotFoundError covers both missing chats and chats owned by someone else.
func NewNotFoundError(operation string, userID, chatID uint) *ChatError {
	return &ChatError{
		Type:      ErrTypeNotFound,
		Operation: operation,
		Message:   "chat not found",
		UserID:    userID,
		ChatID:    chatID,
	}
}

func NewStoreError(operation string, chatID uint, cause error) *ChatError {
	return &ChatError{
		Type:      ErrTypeStoreUnavailable,
		Operation: operation,
		Message:   "store unavailable",
		ChatID:    chatID,
		Cause:     cause,
	}
}

func typeOf(err error) ErrorType {
	var ce *ChatError
	if errors.As(err, &ce) {
		return ce.Type
	}
	return ""
}

func IsNotFound(err error) bool {
	return typeOf(err) == ErrTypeNotFound
}

func IsValidation(err error) bool {
	return typeOf(err) == ErrTypeValidation
}

func IsStoreUnavailable(err error) bool {
	return typeOf(err) == ErrTypeStoreUnavailable
}
