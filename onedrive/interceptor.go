package onedrive

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/onedrive-sdk-go/auth"
)

// Interceptor is a pipeline hook invoked once per outgoing request, before
// transmission. It may mutate the request's headers and may block (a token
// refresh is network I/O). An error aborts the request.
type Interceptor interface {
	Intercept(ctx context.Context, req *http.Request) error
}

// AccountSource yields the currently signed-in account, or nil.
// auth.Authenticator satisfies it.
type AccountSource interface {
	AccountInfo() auth.AccountInfo
}

// AuthInterceptor injects a bearer token into outgoing requests, refreshing
// the account's token first when it has expired. Requests that already carry
// an Authorization header pass through untouched (caller-supplied auth wins),
// as do requests made while no account is signed in — some endpoints, such
// as discovery, are reachable unauthenticated.
type AuthInterceptor struct {
	source AccountSource
	logger *slog.Logger

	// refreshes collapses concurrent refreshes of the same account into
	// one provider round trip.
	refreshes singleflight.Group
}

// NewAuthInterceptor builds the authorization interceptor over source.
func NewAuthInterceptor(source AccountSource, logger *slog.Logger) *AuthInterceptor {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthInterceptor{source: source, logger: logger}
}

func (i *AuthInterceptor) Intercept(ctx context.Context, req *http.Request) error {
	if req.Header.Get("Authorization") != "" {
		return nil
	}

	account := i.source.AccountInfo()
	if account == nil {
		return nil
	}

	if account.IsExpired() {
		i.logger.Debug("access token expired, refreshing",
			slog.String("account_type", string(account.AccountType())),
		)

		// Refresh failures propagate and abort the request; a silently
		// stale token would just fail server-side with less context.
		_, err, _ := i.refreshes.Do(string(account.AccountType()), func() (any, error) {
			if !account.IsExpired() {
				return nil, nil
			}

			return nil, account.Refresh(ctx)
		})
		if err != nil {
			return err
		}
	}

	req.Header.Set("Authorization", "Bearer "+account.AccessToken())

	return nil
}
