package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindNotFound          Kind = "not_found"
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindInsufficientStock Kind = "insufficient_stock"
	KindInvalidTransition Kind = "invalid_transition"
	KindConflict          Kind = "conflict"
	KindStoreFailure      Kind = "store_failure"
)

// Error is a business error that carries its Kind and optional structured details.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is matches kind sentinels (errors with no message) against any error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// Kind sentinels, usable with errors.Is.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrInsufficientStock = &Error{Kind: KindInsufficientStock}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrConflict          = &Error{Kind: KindConflict}
)

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// ProductNotFound is the not-found error for an order line whose product is gone.
func ProductNotFound(productID string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: "product " + productID + " not found",
		Details: map[string]any{"productId": productID},
	}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func InvalidTransition(from, to string) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("cannot change order status from %s to %s", from, to),
		Details: map[string]any{"from": from, "to": to},
	}
}

// InsufficientStock names the product that could not cover the requested quantity.
func InsufficientStock(productID, productName string, requested, available int) *Error {
	return &Error{
		Kind:    KindInsufficientStock,
		Message: fmt.Sprintf("insufficient stock for %s: requested %d, available %d", productName, requested, available),
		Details: map[string]any{
			"productId":   productID,
			"productName": productName,
			"requested":   requested,
			"available":   available,
		},
	}
}

// KindOf returns the Kind of err, or KindStoreFailure for anything unclassified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStoreFailure
}

// DetailsOf returns the structured details attached to err, if any.
func DetailsOf(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}
