// Package auth implements authentication against the two Microsoft identity
// realms that can govern a OneDrive user: personal Microsoft accounts
// (consumer) and Azure Active Directory organizational accounts (directory).
// A Resolver wraps one authenticator of each flavor behind a single surface
// and decides, per login, which realm applies.
package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for authentication outcomes.
// Use errors.Is(err, auth.ErrCancelled) to check.
var (
	// ErrNotInitialized means a method was called before Init.
	// This is a caller bug, not a transient condition.
	ErrNotInitialized = errors.New("auth: init must be called first")

	// ErrFailure is the generic provider-rejection classification. Callers
	// typically recover by falling back to an interactive login.
	ErrFailure = errors.New("auth: authentication failure")

	// ErrCancelled means the user deliberately aborted an interactive flow.
	// Distinguished from ErrFailure so callers can skip error UI.
	ErrCancelled = errors.New("auth: authentication cancelled")

	// ErrUnsupportedAccountType means a value outside the closed account-type
	// enumeration was encountered. The disambiguation UI's contract is a
	// closed set, so this signals a programming error.
	ErrUnsupportedAccountType = errors.New("auth: unsupported account type")
)

// Error wraps a provider failure with the operation that produced it.
// The Err field is one of the sentinels above.
type Error struct {
	Op    string // "login", "login_silent", "logout", "discovery", ...
	Cause error  // underlying provider error, may be nil
	Err   error  // sentinel, for errors.Is()
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth: %s: %v: %v", e.Op, e.Err, e.Cause)
	}

	return fmt.Sprintf("auth: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// failure builds an Error classified as a generic authentication failure.
func failure(op string, cause error) *Error {
	return &Error{Op: op, Cause: cause, Err: ErrFailure}
}

// cancelled builds an Error classified as a user cancellation.
func cancelled(op string, cause error) *Error {
	return &Error{Op: op, Cause: cause, Err: ErrCancelled}
}
