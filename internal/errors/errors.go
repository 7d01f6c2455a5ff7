package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error kinds surfaced by the login, provisioning and data flows
var (
	// Authorization errors
	ErrStateMismatch  = errors.New("oauth state mismatch")
	ErrTokenExchange  = errors.New("token exchange failed")
	ErrIdentityLookup = errors.New("identity lookup failed")

	// Provisioning errors
	ErrProvisioning = errors.New("provisioning failed")

	// Remote spreadsheet errors during normal reads and appends
	ErrRemoteAPI = errors.New("remote api call failed")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")

	// General errors
	ErrInvalidInput = errors.New("invalid input")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Kind tags err with one of the sentinel kinds above while keeping the cause in the chain.
func Kind(kind, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", kind, err)
}

type retryableError struct {
	err error
}

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// Retryable marks err as a transient failure the user may retry.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err: err}
}

// IsRetryable reports whether err was marked retryable or is a timeout.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var r retryableError
	if errors.As(err, &r) {
		return true
	}
	return IsTimeout(err)
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
