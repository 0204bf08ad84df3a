package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
)

// accountChooserURLFormat is the hosted account-chooser page. The chooser
// eventually redirects the embedded browser to the ru callback with
// account_type and user_email query parameters.
const accountChooserURLFormat = "https://onedrive.live.com/picker/accountchooser?ru=%s&load_login=false"

// Disambiguation is the outcome of the account-chooser flow.
type Disambiguation struct {
	AccountType AccountType
	Account     string // user email, may be empty
}

// ChooserUI presents the hosted account-chooser page and reports which
// realm the user picked. Hosts supply an implementation the same way they
// supply a LoginUI.
type ChooserUI interface {
	// Choose navigates the user to chooserURL and blocks until the page
	// redirects to an URL whose authority matches callbackAuthority,
	// returning that full callback URL. A user-initiated dismissal must
	// return an error wrapping ErrCancelled.
	Choose(ctx context.Context, chooserURL, callbackAuthority string) (*url.URL, error)
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	// Consumer and Directory are the two wrapped authenticators. Required.
	Consumer  *ConsumerAuthenticator
	Directory *DirectoryAuthenticator

	// Store persists the disambiguation record. Required. Independent of
	// the two providers' own namespaces.
	Store TokenStore

	// UI presents the account chooser when no resolution is persisted.
	UI ChooserUI

	// CallbackAuthority is the authority the chooser redirects to.
	// Defaults to "localhost:777", matching the hosted chooser's contract.
	CallbackAuthority string

	// SilentLoginOrder sets which provider LoginSilent probes first.
	// The order is a latency heuristic, not a correctness requirement.
	// Defaults to consumer first.
	SilentLoginOrder []AccountType

	// Logger receives structured debug output. Defaults to slog.Default().
	Logger *slog.Logger
}

// defaultCallbackAuthority is where the hosted chooser redirects.
const defaultCallbackAuthority = "localhost:777"

// Resolver wraps a consumer and a directory authenticator behind one
// Authenticator surface, deciding per login which realm governs the user.
// The resolution is persisted so later logins skip the chooser.
type Resolver struct {
	cfg    ResolverConfig
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	account     AccountInfo
}

// Resolver implements the same surface as the authenticators it wraps.
var _ Authenticator = (*Resolver)(nil)

// NewResolver builds a disambiguating resolver over the two authenticators.
// Call Init before any other method.
func NewResolver(cfg ResolverConfig) *Resolver {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Resolver{cfg: cfg, logger: logger}
}

// Init initializes both wrapped authenticators. Idempotent.
func (r *Resolver) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return nil
	}

	if r.cfg.Consumer == nil || r.cfg.Directory == nil || r.cfg.Store == nil {
		return fmt.Errorf("auth: resolver: %w: missing authenticator or store", ErrNotInitialized)
	}

	r.logger.Debug("initializing consumer and directory authenticators")

	if err := r.cfg.Consumer.Init(ctx); err != nil {
		return err
	}

	if err := r.cfg.Directory.Init(ctx); err != nil {
		return err
	}

	r.initialized = true

	return nil
}

// Login resolves which realm governs the user — from the persisted
// disambiguation record when present, otherwise through the chooser UI —
// then delegates to that realm's interactive login and persists the
// resolution.
func (r *Resolver) Login(ctx context.Context, emailHint string) (AccountInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return nil, ErrNotInitialized
	}

	r.logger.Debug("starting resolver login")

	accountType, known, err := r.persistedAccountTypeLocked()
	if err != nil {
		return nil, failure("login", err)
	}

	accountName := emailHint

	if known {
		r.logger.Debug("found saved disambiguation record",
			slog.String("account_type", string(accountType)),
		)
	} else {
		if r.cfg.UI == nil {
			return nil, failure("login", fmt.Errorf("no ChooserUI configured"))
		}

		r.logger.Debug("presenting account chooser, waiting for user to sign in")

		resolution, chooseErr := r.disambiguateLocked(ctx)
		if chooseErr != nil {
			return nil, chooseErr
		}

		r.logger.Debug("disambiguated account",
			slog.String("account_type", string(resolution.AccountType)),
		)

		accountType = resolution.AccountType

		if resolution.Account != "" {
			accountName = resolution.Account
		}
	}

	account, err := r.delegateLoginLocked(ctx, accountType, accountName)
	if err != nil {
		return nil, err
	}

	if err := r.persistAccountTypeLocked(accountType); err != nil {
		return nil, failure("login", err)
	}

	r.account = account

	return account, nil
}

// LoginSilent probes the wrapped authenticators in the configured order and
// adopts the first account found. Returns (nil, nil) when neither realm has
// a cached login.
func (r *Resolver) LoginSilent(ctx context.Context) (AccountInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return nil, ErrNotInitialized
	}

	r.logger.Debug("starting resolver silent login")

	for _, accountType := range r.silentOrder() {
		authenticator, err := r.authenticatorFor(accountType)
		if err != nil {
			return nil, err
		}

		r.logger.Debug("probing realm for cached login",
			slog.String("account_type", string(accountType)),
		)

		account, err := authenticator.LoginSilent(ctx)
		if err != nil {
			return nil, err
		}

		if account != nil {
			r.logger.Debug("found cached login",
				slog.String("account_type", string(accountType)),
			)

			if persistErr := r.persistAccountTypeLocked(accountType); persistErr != nil {
				return nil, failure("login_silent", persistErr)
			}

			r.account = account

			return account, nil
		}
	}

	return nil, nil
}

// Logout signs out whichever realm currently holds a live account, then
// clears the disambiguation record.
func (r *Resolver) Logout(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.initialized {
		return ErrNotInitialized
	}

	r.logger.Debug("starting resolver logout")

	var err error

	switch {
	case r.cfg.Consumer.AccountInfo() != nil:
		r.logger.Debug("logging out consumer account")
		err = r.cfg.Consumer.Logout(ctx)
	case r.cfg.Directory.AccountInfo() != nil:
		r.logger.Debug("logging out directory account")
		err = r.cfg.Directory.Logout(ctx)
	}

	// The record is cleared even when the provider-side logout failed, so
	// the user is never stranded half signed-in.
	if clearErr := r.cfg.Store.Clear(); clearErr != nil && err == nil {
		err = failure("logout", clearErr)
	}

	r.account = nil

	return err
}

// AccountInfo returns the currently resolved account, or nil.
func (r *Resolver) AccountInfo() AccountInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.account
}

// disambiguateLocked runs the chooser flow and parses its callback.
// Caller holds r.mu.
func (r *Resolver) disambiguateLocked(ctx context.Context) (*Disambiguation, error) {
	authority := r.cfg.CallbackAuthority
	if authority == "" {
		authority = defaultCallbackAuthority
	}

	chooserURL := fmt.Sprintf(accountChooserURLFormat, url.QueryEscape("https://"+authority))

	callback, err := r.cfg.UI.Choose(ctx, chooserURL, authority)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			// User dismissal keeps its dedicated classification so callers
			// can tell "user declined" from "service unreachable".
			return nil, cancelled("disambiguation", err)
		}

		return nil, failure("disambiguation", err)
	}

	return ParseDisambiguationCallback(callback, authority)
}

// ParseDisambiguationCallback extracts the resolution from a chooser
// callback URL. The URL is recognized by authority match; account_type
// values outside the closed enumeration return ErrUnsupportedAccountType.
func ParseDisambiguationCallback(callback *url.URL, callbackAuthority string) (*Disambiguation, error) {
	if !strings.EqualFold(callback.Host, callbackAuthority) {
		return nil, failure("disambiguation", fmt.Errorf("unexpected callback authority %q", callback.Host))
	}

	accountType, err := ParseAccountType(callback.Query().Get("account_type"))
	if err != nil {
		return nil, err
	}

	return &Disambiguation{
		AccountType: accountType,
		Account:     callback.Query().Get("user_email"),
	}, nil
}

// delegateLoginLocked dispatches the interactive login to the realm named by
// accountType. Caller holds r.mu.
func (r *Resolver) delegateLoginLocked(ctx context.Context, accountType AccountType, accountName string) (AccountInfo, error) {
	authenticator, err := r.authenticatorFor(accountType)
	if err != nil {
		return nil, err
	}

	return authenticator.Login(ctx, accountName)
}

// authenticatorFor maps an account type to its authenticator. A value
// outside the closed set is a programming error, not an auth failure.
func (r *Resolver) authenticatorFor(accountType AccountType) (Authenticator, error) {
	switch accountType {
	case AccountTypeConsumer:
		return r.cfg.Consumer, nil
	case AccountTypeDirectory:
		return r.cfg.Directory, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAccountType, accountType)
	}
}

// persistedAccountTypeLocked reads the disambiguation record. A record
// written under a different schema version is treated as absent, so the
// next login routes through the chooser again. Caller holds r.mu.
func (r *Resolver) persistedAccountTypeLocked() (AccountType, bool, error) {
	raw, ok, err := r.cfg.Store.Get(KeyAccountType)
	if err != nil || !ok {
		return "", false, err
	}

	version, _, err := r.cfg.Store.Get(KeyVersionCode)
	if err != nil {
		return "", false, err
	}

	if version != loginStateVersion {
		return "", false, nil
	}

	accountType, err := ParseAccountType(raw)
	if err != nil {
		return "", false, err
	}

	return accountType, true, nil
}

// persistAccountTypeLocked records the resolution. Caller holds r.mu.
func (r *Resolver) persistAccountTypeLocked(accountType AccountType) error {
	return r.cfg.Store.PutAll(map[string]string{
		KeyAccountType: string(accountType),
		KeyVersionCode: loginStateVersion,
	})
}

// silentOrder returns the configured probe order, defaulting to consumer
// first: the cheaper check and historically the more common account type.
func (r *Resolver) silentOrder() []AccountType {
	if len(r.cfg.SilentLoginOrder) > 0 {
		return r.cfg.SilentLoginOrder
	}

	return []AccountType{AccountTypeConsumer, AccountTypeDirectory}
}
