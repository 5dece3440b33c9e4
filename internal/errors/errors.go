package errors

import (
	"errors"
	"fmt"
)

// Common error types for the web gateway
var (
	// Session errors
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrRefreshFailed    = errors.New("refresh failed")
	ErrLoginRequired    = errors.New("login required")

	// Upstream status classes
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrUpstream     = errors.New("upstream request failed")

	// Billing errors
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrNoCustomer       = errors.New("no billing customer")
	ErrBillingDisabled  = errors.New("billing is not configured")

	// General errors
	ErrInvalidRequest = errors.New("invalid request")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target any) bool {
	return errors.As(err, target)
}
