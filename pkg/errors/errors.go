package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the realtime core reacts to it
type Kind string

const (
	// KindTransport covers connect failures and mid-session error frames. Recoverable.
	KindTransport Kind = "transport"
	// KindAuthorization is fatal to the session (blocked user).
	KindAuthorization Kind = "authorization"
	// KindProtocol marks protocol-invariant violations (conflicting roles, malformed frames).
	KindProtocol Kind = "protocol"
	// KindBusiness is a local rule rejection; the state machine stays put.
	KindBusiness Kind = "business"
	// KindInternal is anything unexpected.
	KindInternal Kind = "internal"
)

// AppError represents an application error with a taxonomy kind
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Kind    Kind   `json:"kind"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches AppErrors by code so wrapped sentinels compare equal.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// NewAppError creates a new AppError
func NewAppError(code, message string, kind Kind, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Kind:    kind,
		Err:     err,
	}
}

// Transport creates a recoverable transport error
func Transport(code, message string, err error) *AppError {
	return NewAppError(code, message, KindTransport, err)
}

// Authorization creates a session-fatal error
func Authorization(code, message string, err error) *AppError {
	return NewAppError(code, message, KindAuthorization, err)
}

// Protocol creates a protocol-invariant violation
func Protocol(code, message string, err error) *AppError {
	return NewAppError(code, message, KindProtocol, err)
}

// Business creates a local business-rule rejection
func Business(code, message string, err error) *AppError {
	return NewAppError(code, message, KindBusiness, err)
}

// Internal creates an unexpected error
func Internal(message string, err error) *AppError {
	return NewAppError("INTERNAL_ERROR", message, KindInternal, err)
}

var (
	ErrNotConnected          = Business("NOT_CONNECTED", "Realtime channel is not connected", nil)
	ErrEmptyMessage          = Business("EMPTY_MESSAGE", "Message is empty", nil)
	ErrNoActiveOffer         = Business("NO_ACTIVE_OFFER", "There is no pending ride offer", nil)
	ErrNoActiveRide          = Business("NO_ACTIVE_RIDE", "There is no active ride", nil)
	ErrInvalidPin            = Business("INVALID_PIN", "Invalid PIN", nil)
	ErrTooFarFromDestination = Business("TOO_FAR_FROM_DESTINATION", "You must be near the destination to complete the ride", nil)
	ErrLocationUnavailable   = Business("LOCATION_UNAVAILABLE", "Current location is unavailable", nil)
	ErrRequestInFlight       = Business("REQUEST_IN_FLIGHT", "A request is already in progress", nil)
	ErrInvalidTransition     = Business("INVALID_TRANSITION", "Invalid ride status transition", nil)

	ErrMultipleRoles = Protocol("MULTIPLE_ROLES", "More than one role is logged in", nil)
	ErrInvalidOffer  = Protocol("INVALID_OFFER", "Received an invalid ride request", nil)
	ErrStaleFrame    = Protocol("STALE_FRAME", "Frame references a ride that is not current", nil)

	ErrUserBlocked = Authorization("USER_BLOCKED", "Your account has been blocked", nil)
)

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError attempts to convert an error to AppError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}

// KindOf returns the taxonomy kind of err, KindInternal for foreign errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return GetAppError(err).Kind
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WithCause returns a copy of appErr carrying err as its cause
func WithCause(appErr *AppError, err error) *AppError {
	if appErr == nil {
		return nil
	}
	return &AppError{
		Code:    appErr.Code,
		Message: appErr.Message,
		Kind:    appErr.Kind,
		Err:     err,
	}
}

// WithMessage returns a copy of appErr with a replaced user-facing message
func WithMessage(appErr *AppError, message string) *AppError {
	if appErr == nil {
		return nil
	}
	return &AppError{
		Code:    appErr.Code,
		Message: message,
		Kind:    appErr.Kind,
		Err:     appErr.Err,
	}
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
