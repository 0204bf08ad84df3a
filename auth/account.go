package auth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AccountType is the closed set of identity realms an account can belong to.
type AccountType string

const (
	// AccountTypeConsumer is a personal Microsoft account ("MSA").
	AccountTypeConsumer AccountType = "MicrosoftAccount"

	// AccountTypeDirectory is an Azure-Active-Directory-backed
	// organizational account ("AAD").
	AccountTypeDirectory AccountType = "ActiveDirectory"
)

// Wire representations used by the disambiguation service callback.
const (
	consumerRepresentation  = "MSA"
	directoryRepresentation = "AAD"
)

// ParseAccountType maps a wire representation ("MSA", "AAD") or a stored
// enum name to an AccountType. Matching is case-insensitive. A value outside
// the closed set returns ErrUnsupportedAccountType.
func ParseAccountType(s string) (AccountType, error) {
	switch {
	case strings.EqualFold(s, consumerRepresentation),
		strings.EqualFold(s, string(AccountTypeConsumer)):
		return AccountTypeConsumer, nil
	case strings.EqualFold(s, directoryRepresentation),
		strings.EqualFold(s, string(AccountTypeDirectory)):
		return AccountTypeDirectory, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAccountType, s)
	}
}

// AccountInfo is a snapshot of a signed-in account. Implementations are owned
// by their authenticator; Refresh supersedes the internal session so that
// subsequent AccessToken calls reflect the new token.
type AccountInfo interface {
	// AccountType reports which identity realm issued this account.
	AccountType() AccountType

	// AccessToken returns the current bearer token. Never log this value.
	AccessToken() string

	// ServiceRoot returns the base URL of the OneDrive service this
	// account is entitled to.
	ServiceRoot() string

	// IsExpired reports whether the access token has passed its expiry.
	// Pure function of the clock; performs no I/O.
	IsExpired() bool

	// Refresh obtains a fresh access token via the owning authenticator's
	// silent flow. Only valid after a previously successful login. May block
	// on network I/O.
	Refresh(ctx context.Context) error
}

// expired reports whether the given expiry instant has passed.
// A zero expiry is treated as non-expiring.
func expired(expiry time.Time, now func() time.Time) bool {
	if expiry.IsZero() {
		return false
	}

	return expiry.Before(now())
}
