// Package apperrors holds the error taxonomy shared by services and handlers.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindConflict          Kind = "conflict_error"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindProvider          Kind = "provider_error"
	KindNotFound          Kind = "not_found"
)

// Error is a classified application error
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidation reports bad input rejected before any mutation
func NewValidation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewNotFound reports a missing reference
func NewNotFound(entity, id string) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s with ID %s not found", entity, id)}
}

// NewConflict reports a benign duplicate or a lost race
func NewConflict(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// InsufficientFundsError carries the amounts of a denied spend.
type InsufficientFundsError struct {
	TenantID  string
	Required  int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient credits for tenant %s: required %d, available %d", e.TenantID, e.Required, e.Available)
}

// NewInsufficientFunds reports a Credit Gate denial
func NewInsufficientFunds(tenantID string, required, available int64) error {
	return &Error{
		Kind:    KindInsufficientFunds,
		Message: "credit authorization denied",
		Err:     &InsufficientFundsError{TenantID: tenantID, Required: required, Available: available},
	}
}

// NewProvider wraps a transient failure of an outbound provider
func NewProvider(provider string, err error) error {
	return &Error{Kind: KindProvider, Message: fmt.Sprintf("%s request failed", provider), Err: err}
}

// KindOf returns the kind of the first classified error in the chain, or "".
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

func IsValidation(err error) bool        { return KindOf(err) == KindValidation }
func IsNotFound(err error) bool          { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool          { return KindOf(err) == KindConflict }
func IsInsufficientFunds(err error) bool { return KindOf(err) == KindInsufficientFunds }
func IsProvider(err error) bool          { return KindOf(err) == KindProvider }

// HTTPStatus maps an error to the status code handlers respond with
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindInsufficientFunds:
		return http.StatusPaymentRequired
	case KindProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
