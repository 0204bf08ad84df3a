package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	cv "github.com/nirasan/go-oauth-pkce-code-verifier"
	"golang.org/x/oauth2"
)

// Microsoft consumer OAuth endpoints (the hosted MSA flow).
const (
	consumerOAuthBase = "https://login.microsoftonline.com/common/oauth2/"

	// ConsumerServiceRoot is the OneDrive personal API root. Consumer
	// accounts always use this fixed root; only directory accounts go
	// through service discovery.
	ConsumerServiceRoot = "https://api.onedrive.com/v1.0"

	// defaultConsumerRedirect is the native-client redirect URI registered
	// for public clients without their own callback authority.
	defaultConsumerRedirect = "https://login.microsoftonline.com/common/oauth2/nativeclient"
)

// defaultUserID is persisted when a login completes without an email hint.
const defaultUserID = "@@defaultUser"

// stateTokenBytes is the number of random bytes in the OAuth2 state parameter.
const stateTokenBytes = 16

// ConsumerConfig configures a ConsumerAuthenticator.
type ConsumerConfig struct {
	// ClientID is the application's registered client identifier. Required.
	ClientID string

	// Scopes requested during login. Required.
	Scopes []string

	// Store persists login state between runs. Required. Must be a
	// namespace owned exclusively by this authenticator.
	Store TokenStore

	// UI drives the interactive half of the login flow. Required for
	// Login; LoginSilent and Logout work without it.
	UI LoginUI

	// RedirectURL is the OAuth redirect the UI watches for.
	// Defaults to the Microsoft native-client redirect.
	RedirectURL string

	// Endpoint overrides the OAuth endpoints. Zero value targets the
	// hosted Microsoft consumer endpoints; tests point this at a mock.
	Endpoint oauth2.Endpoint

	// HTTPClient is used for token-endpoint round trips.
	// Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger receives structured debug output. Defaults to slog.Default().
	Logger *slog.Logger
}

// ConsumerAuthenticator signs users in against the personal Microsoft
// account realm. Safe for concurrent use; login, silent login, logout, and
// refresh are mutually exclusive per instance.
type ConsumerAuthenticator struct {
	cfg    ConsumerConfig
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	userID      string
	account     *consumerAccount

	// now is the clock used for expiry checks. Tests override it.
	now func() time.Time
}

// NewConsumerAuthenticator builds a consumer authenticator.
// Call Init before any other method.
func NewConsumerAuthenticator(cfg ConsumerConfig) *ConsumerAuthenticator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ConsumerAuthenticator{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Init loads persisted login state. Idempotent: a second call is a no-op.
// Fails only for unrecoverable configuration errors (missing client ID or
// store), which signal a caller bug rather than a transient condition.
func (a *ConsumerAuthenticator) Init(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return nil
	}

	if a.cfg.ClientID == "" {
		return fmt.Errorf("auth: consumer: %w: missing client ID", ErrNotInitialized)
	}

	if a.cfg.Store == nil {
		return fmt.Errorf("auth: consumer: %w: missing token store", ErrNotInitialized)
	}

	userID, hasUser, err := a.cfg.Store.Get(KeyUserID)
	if err != nil {
		return fmt.Errorf("auth: consumer: reading persisted state: %w", err)
	}

	_, hasToken, err := a.cfg.Store.Get(KeyToken)
	if err != nil {
		return fmt.Errorf("auth: consumer: reading persisted state: %w", err)
	}

	version, _, err := a.cfg.Store.Get(KeyVersionCode)
	if err != nil {
		return fmt.Errorf("auth: consumer: reading persisted state: %w", err)
	}

	a.initialized = true

	// Partially-present or versioned-out state is treated as corruption:
	// flush everything so the application starts from a known state.
	if hasUser || hasToken {
		if !hasUser || !hasToken || version != loginStateVersion {
			a.logger.Debug("persisted consumer login state incomplete, flushing")

			if clearErr := a.clearStateLocked(); clearErr != nil {
				return fmt.Errorf("auth: consumer: flushing corrupt state: %w", clearErr)
			}

			return nil
		}

		a.userID = userID
		a.logger.Debug("found existing consumer login information")
	}

	return nil
}

// Login drives the interactive authorization-code + PKCE flow through the
// configured LoginUI, persists the resulting state, and returns the account.
func (a *ConsumerAuthenticator) Login(ctx context.Context, emailHint string) (AccountInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return nil, ErrNotInitialized
	}

	if a.cfg.UI == nil {
		return nil, failure("login", errors.New("no LoginUI configured"))
	}

	a.logger.Debug("starting consumer login")

	ocfg := a.oauthConfig()

	verifier, err := cv.CreateCodeVerifier()
	if err != nil {
		return nil, failure("login", fmt.Errorf("creating PKCE verifier: %w", err))
	}

	state, err := generateState()
	if err != nil {
		return nil, failure("login", err)
	}

	authURL := ocfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", verifier.CodeChallengeS256()),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("login_hint", emailHint),
	)

	a.logger.Debug("waiting for consumer login callback")

	callback, err := a.cfg.UI.PresentAuth(ctx, authURL, ocfg.RedirectURL)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return nil, cancelled("login", err)
		}

		return nil, failure("login", err)
	}

	if cbState := callback.Query().Get("state"); cbState != state {
		return nil, failure("login", errors.New("oauth2 state mismatch"))
	}

	code := callback.Query().Get("code")
	if code == "" {
		return nil, failure("login", errors.New("callback missing authorization code"))
	}

	tok, err := ocfg.Exchange(a.requestContext(ctx), code,
		oauth2.SetAuthURLParam("code_verifier", verifier.String()),
	)
	if err != nil {
		return nil, failure("login", fmt.Errorf("token exchange: %w", err))
	}

	userID := emailHint
	if userID == "" {
		userID = defaultUserID
	}

	if err := a.persistLoginLocked(userID, tok); err != nil {
		return nil, failure("login", err)
	}

	a.logger.Debug("consumer login successful")
	a.account = a.newAccountLocked(tok)

	return a.account, nil
}

// LoginSilent re-authenticates with the persisted refresh token.
// Returns (nil, nil) when no prior login exists — no network call is made.
func (a *ConsumerAuthenticator) LoginSilent(ctx context.Context) (AccountInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return nil, ErrNotInitialized
	}

	a.logger.Debug("starting consumer silent login")

	tok, ok, err := a.loadTokenLocked()
	if err != nil {
		return nil, failure("login_silent", err)
	}

	if !ok {
		a.logger.Debug("no consumer login information found for silent authentication")
		return nil, nil
	}

	fresh, err := a.refreshLocked(ctx, tok)
	if err != nil {
		return nil, failure("login_silent", err)
	}

	a.account = a.newAccountLocked(fresh)

	a.logger.Debug("consumer silent login successful")

	return a.account, nil
}

// Logout clears persisted state and the in-memory session. The state is
// cleared locally even when persistence errors occur, so the user is never
// stranded half signed-in.
func (a *ConsumerAuthenticator) Logout(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return ErrNotInitialized
	}

	a.logger.Debug("starting consumer logout")

	err := a.clearStateLocked()

	a.account = nil
	a.userID = ""

	if err != nil {
		return failure("logout", err)
	}

	return nil
}

// AccountInfo returns the current account, or nil when logged out.
func (a *ConsumerAuthenticator) AccountInfo() AccountInfo {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.account == nil {
		// Typed-nil pitfall: return a true nil interface.
		return nil
	}

	return a.account
}

// refreshToken exchanges the persisted refresh token for a fresh access
// token and persists the result. Called by consumerAccount.Refresh.
func (a *ConsumerAuthenticator) refreshToken(ctx context.Context) (*oauth2.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return nil, ErrNotInitialized
	}

	tok, ok, err := a.loadTokenLocked()
	if err != nil {
		return nil, failure("refresh", err)
	}

	if !ok {
		return nil, failure("refresh", errors.New("no persisted login to refresh"))
	}

	fresh, err := a.refreshLocked(ctx, tok)
	if err != nil {
		return nil, failure("refresh", err)
	}

	return fresh, nil
}

// refreshLocked runs the oauth2 refresh flow for tok. The config's
// OnTokenChange hook persists any rotated token. Caller holds a.mu.
func (a *ConsumerAuthenticator) refreshLocked(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, error) {
	src := a.oauthConfig().TokenSource(a.requestContext(ctx), tok)

	fresh, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	return fresh, nil
}

// loadTokenLocked reads and decodes the persisted token. Caller holds a.mu.
func (a *ConsumerAuthenticator) loadTokenLocked() (*oauth2.Token, bool, error) {
	raw, ok, err := a.cfg.Store.Get(KeyToken)
	if err != nil || !ok {
		return nil, false, err
	}

	var tok oauth2.Token
	if err := json.Unmarshal([]byte(raw), &tok); err != nil {
		return nil, false, fmt.Errorf("decoding persisted token: %w", err)
	}

	return &tok, true, nil
}

// persistLoginLocked writes the complete login state atomically.
// Caller holds a.mu.
func (a *ConsumerAuthenticator) persistLoginLocked(userID string, tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	if err := a.cfg.Store.PutAll(map[string]string{
		KeyUserID:      userID,
		KeyToken:       string(raw),
		KeyVersionCode: loginStateVersion,
	}); err != nil {
		return fmt.Errorf("persisting login state: %w", err)
	}

	a.userID = userID

	return nil
}

// clearStateLocked wipes the namespace, keeping only the version marker.
// Caller holds a.mu.
func (a *ConsumerAuthenticator) clearStateLocked() error {
	if err := a.cfg.Store.Clear(); err != nil {
		return err
	}

	return a.cfg.Store.PutAll(map[string]string{KeyVersionCode: loginStateVersion})
}

// oauthConfig builds the oauth2 configuration, wiring OnTokenChange so that
// tokens rotated during silent refresh are persisted immediately.
func (a *ConsumerAuthenticator) oauthConfig() *oauth2.Config {
	endpoint := a.cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = oauth2.Endpoint{
			AuthURL:  consumerOAuthBase + "authorize",
			TokenURL: consumerOAuthBase + "token",
		}
	}

	redirect := a.cfg.RedirectURL
	if redirect == "" {
		redirect = defaultConsumerRedirect
	}

	return &oauth2.Config{
		ClientID:    a.cfg.ClientID,
		Scopes:      a.cfg.Scopes,
		Endpoint:    endpoint,
		RedirectURL: redirect,
		// Called by ReuseTokenSource after each silent refresh, outside its mutex.
		OnTokenChange: func(tok *oauth2.Token) {
			raw, err := json.Marshal(tok)
			if err != nil {
				a.logger.Warn("failed to encode refreshed token", slog.String("error", err.Error()))
				return
			}

			if err := a.cfg.Store.PutAll(map[string]string{KeyToken: string(raw)}); err != nil {
				a.logger.Warn("failed to persist refreshed token", slog.String("error", err.Error()))
				return
			}

			a.logger.Debug("persisted refreshed consumer token")
		},
	}
}

// requestContext binds the configured HTTP client into ctx for the oauth2
// library's token-endpoint round trips.
func (a *ConsumerAuthenticator) requestContext(ctx context.Context) context.Context {
	if a.cfg.HTTPClient == nil {
		return ctx
	}

	return context.WithValue(ctx, oauth2.HTTPClient, a.cfg.HTTPClient)
}

// newAccountLocked builds the immutable-to-callers account snapshot.
// Caller holds a.mu.
func (a *ConsumerAuthenticator) newAccountLocked(tok *oauth2.Token) *consumerAccount {
	return &consumerAccount{owner: a, token: tok, now: a.now}
}

// consumerAccount is the AccountInfo for a signed-in personal account.
// Refresh supersedes the held token; the snapshot is never mutated in place
// by anything other than Refresh.
type consumerAccount struct {
	owner *ConsumerAuthenticator
	now   func() time.Time

	mu    sync.RWMutex
	token *oauth2.Token
}

func (c *consumerAccount) AccountType() AccountType { return AccountTypeConsumer }

func (c *consumerAccount) ServiceRoot() string { return ConsumerServiceRoot }

func (c *consumerAccount) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.token.AccessToken
}

func (c *consumerAccount) IsExpired() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return expired(c.token.Expiry, c.now)
}

func (c *consumerAccount) Refresh(ctx context.Context) error {
	fresh, err := c.owner.refreshToken(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.token = fresh
	c.mu.Unlock()

	return nil
}

// generateState produces a cryptographically random hex string for the
// OAuth2 state parameter.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating state token: %w", err)
	}

	return hex.EncodeToString(b), nil
}
