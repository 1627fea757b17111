package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// NewSessionConflict reports a duplicate interview or decline attempt.
// The holder identifies who currently owns the session.
func NewSessionConflict(message, holder string) error {
	return NewDomainError("SESSION_CONFLICT", message, http.StatusConflict, map[string]any{
		"holder": holder,
	})
}

// NewTimeout reports an unanswered prompt; the current flow is aborted.
func NewTimeout(message string) error {
	return NewDomainError("TIMEOUT", message, http.StatusRequestTimeout, nil)
}

// NewCancelled reports an explicit user opt-out.
func NewCancelled(message string) error {
	return NewDomainError("CANCELLED", message, http.StatusConflict, nil)
}

// NewRecipientUnreachable reports that a private channel could not be
// opened to the recipient.
func NewRecipientUnreachable(userID string) error {
	return NewDomainError("RECIPIENT_UNREACHABLE", "cannot open a private channel to the user", http.StatusUnprocessableEntity, map[string]any{
		"user_id": userID,
	})
}

// NewTransportFailure wraps a gateway delivery failure.
func NewTransportFailure(err error) error {
	return &DomainError{
		Code:       "TRANSPORT_FAILURE",
		Message:    "message delivery failed",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewPersistenceFailure wraps a store write failure. Fatal to the
// current operation; the operation must not report success.
func NewPersistenceFailure(err error) error {
	return &DomainError{
		Code:       "PERSISTENCE_FAILURE",
		Message:    "store operation failed",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewInvalidTransition(ticketID string, from, to string) error {
	return NewDomainError("INVALID_TRANSITION",
		fmt.Sprintf("ticket %s cannot move from %s to %s", ticketID, from, to),
		http.StatusInternalServerError,
		map[string]any{"ticket_id": ticketID, "from": from, "to": to})
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries the given DomainError code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Code == code
}
