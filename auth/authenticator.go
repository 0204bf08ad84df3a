package auth

import (
	"context"
	"net/url"
)

// Authenticator manages the full lifecycle of one identity provider's session.
//
// State machine per instance:
//
//	Uninitialized → Initialized{LoggedOut} → Initialized{LoggedIn}
//
// Login and LoginSilent are the only LoggedOut→LoggedIn transitions; Logout
// returns to LoggedOut; a token refresh stays LoggedIn with a new token.
// Login, LoginSilent, Logout, and refresh are serialized per instance, so two
// concurrent flows can never race on the shared session reference.
//
// All blocking methods take a context. Asynchronous use is a single
// combinator away:
//
//	t := task.Go(func() (auth.AccountInfo, error) { return a.Login(ctx, hint) })
type Authenticator interface {
	// Init performs one-time setup and loads any persisted login state.
	// Idempotent: a second call is a no-op. Returns an error only for
	// unrecoverable configuration problems.
	Init(ctx context.Context) error

	// Login drives the provider's interactive OAuth flow. emailHint
	// pre-fills the provider's account picker and may be empty. Blocks until
	// the user completes or cancels the flow; do not call it on the same
	// goroutine that services the LoginUI callback, or the wait deadlocks.
	// On success the login state is persisted for later silent logins.
	Login(ctx context.Context, emailHint string) (AccountInfo, error)

	// LoginSilent re-authenticates without any UI using persisted state.
	// Returns (nil, nil) when no prior login exists; returns an error
	// wrapping ErrFailure when prior state exists but the provider rejects
	// the silent refresh.
	LoginSilent(ctx context.Context) (AccountInfo, error)

	// Logout clears provider-side cached credentials and all persisted
	// state. Local state is cleared even when the provider-side revoke
	// fails, so the user is never stranded half signed-in.
	Logout(ctx context.Context) error

	// AccountInfo returns the current account, or nil when logged out.
	// Pure read, no I/O.
	AccountInfo() AccountInfo
}

// LoginUI drives the user-facing half of an interactive OAuth flow. The SDK
// never renders UI itself; hosts supply an implementation (embedded web view,
// system browser plus loopback listener, etc.).
type LoginUI interface {
	// PresentAuth navigates the user to authURL and blocks until the
	// provider redirects to redirectURI, returning the full callback URL
	// including its query parameters. A user-initiated dismissal must
	// return an error wrapping ErrCancelled.
	PresentAuth(ctx context.Context, authURL, redirectURI string) (*url.URL, error)
}
