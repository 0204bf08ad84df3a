package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// directoryOAuthBase hosts the common-tenant Azure AD authorization and
// token endpoints.
const directoryOAuthBase = "https://login.windows.net/common/oauth2/"

// DirectoryConfig configures a DirectoryAuthenticator.
type DirectoryConfig struct {
	// ClientID is the application's registered client identifier. Required.
	ClientID string

	// RedirectURL is the redirect URI registered for the application. Required
	// for interactive login.
	RedirectURL string

	// Store persists login state between runs. Required. Must be a
	// namespace owned exclusively by this authenticator.
	Store TokenStore

	// UI drives the interactive half of the login flow.
	UI LoginUI

	// Endpoint overrides the OAuth endpoints; tests point this at a mock.
	Endpoint oauth2.Endpoint

	// DiscoveryURL overrides the discovery service endpoint; tests only.
	DiscoveryURL string

	// HTTPClient is used for token and discovery round trips.
	// Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger receives structured debug output. Defaults to slog.Default().
	Logger *slog.Logger
}

// DirectoryAuthenticator signs users in against Azure Active Directory.
// Interactive login is two round trips: one against the discovery resource
// to learn the tenant's OneDrive endpoint, then a refresh-token redemption
// scoped to that endpoint's resource. Safe for concurrent use; login, silent
// login, logout, and refresh are mutually exclusive per instance.
type DirectoryAuthenticator struct {
	cfg    DirectoryConfig
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
	userID      string
	resourceURL string
	serviceInfo *ServiceInfo
	account     *directoryAccount

	now func() time.Time
}

// NewDirectoryAuthenticator builds a directory authenticator.
// Call Init before any other method.
func NewDirectoryAuthenticator(cfg DirectoryConfig) *DirectoryAuthenticator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &DirectoryAuthenticator{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Init loads persisted login state. Idempotent: a second call is a no-op.
// Partially-present state is treated as corruption and flushed, so the
// application always starts from a known state.
func (a *DirectoryAuthenticator) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return nil
	}

	if a.cfg.ClientID == "" {
		return fmt.Errorf("auth: directory: %w: missing client ID", ErrNotInitialized)
	}

	if a.cfg.Store == nil {
		return fmt.Errorf("auth: directory: %w: missing token store", ErrNotInitialized)
	}

	userID, hasUser, err := a.cfg.Store.Get(KeyUserID)
	if err != nil {
		return fmt.Errorf("auth: directory: reading persisted state: %w", err)
	}

	resourceURL, hasResource, err := a.cfg.Store.Get(KeyResourceURL)
	if err != nil {
		return fmt.Errorf("auth: directory: reading persisted state: %w", err)
	}

	serviceRaw, hasService, err := a.cfg.Store.Get(KeyServiceInfo)
	if err != nil {
		return fmt.Errorf("auth: directory: reading persisted state: %w", err)
	}

	version, _, err := a.cfg.Store.Get(KeyVersionCode)
	if err != nil {
		return fmt.Errorf("auth: directory: reading persisted state: %w", err)
	}

	var serviceInfo *ServiceInfo

	if hasService {
		serviceInfo = &ServiceInfo{}
		if err := json.Unmarshal([]byte(serviceRaw), serviceInfo); err != nil {
			a.logger.Error("unable to parse persisted service info", slog.String("error", err.Error()))

			serviceInfo = nil
			hasService = false
		}
	}

	a.initialized = true

	// Partially-present or versioned-out state is treated as corruption:
	// flush everything so the application starts from a known state.
	if hasUser || hasResource || hasService {
		a.logger.Debug("found existing directory login information")

		if !hasUser || !hasResource || !hasService || version != loginStateVersion {
			a.logger.Debug("existing directory login information incomplete, flushing sign-in state")

			return a.logoutLocked()
		}

		a.userID = userID
		a.resourceURL = resourceURL
		a.serviceInfo = serviceInfo
	}

	return nil
}

// Login drives the two-round-trip interactive directory flow: authorize
// against the discovery resource, resolve the tenant's files service, then
// redeem the refresh token for a service-scoped access token.
func (a *DirectoryAuthenticator) Login(ctx context.Context, emailHint string) (AccountInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return nil, ErrNotInitialized
	}

	if a.cfg.UI == nil {
		return nil, failure("login", errors.New("no LoginUI configured"))
	}

	a.logger.Debug("starting directory login")

	// Round trip one: interactive auth for the discovery resource.
	discoveryToken, err := a.authorizeDiscoveryLocked(ctx, emailHint)
	if err != nil {
		return nil, err
	}

	// Resolve the tenant-specific files service.
	a.logger.Debug("starting discovery service request")

	services, err := fetchServices(ctx, a.cfg.HTTPClient, a.discoveryURL(), discoveryToken.AccessToken)
	if err != nil {
		return nil, failure("discovery", err)
	}

	serviceInfo, err := selectMyFilesService(services)
	if err != nil {
		return nil, failure("discovery", err)
	}

	// Round trip two: redeem the refresh token for the files resource.
	a.logger.Debug("starting service resource token request")

	serviceToken, err := a.redeemRefreshTokenLocked(ctx, discoveryToken.RefreshToken, serviceInfo.ServiceResourceID)
	if err != nil {
		return nil, failure("login", err)
	}

	userID := emailHint
	if userID == "" {
		userID = defaultUserID
	}

	if err := a.persistLoginLocked(userID, serviceInfo, serviceToken); err != nil {
		return nil, failure("login", err)
	}

	a.logger.Debug("directory login successful, saved information for silent re-auth",
		slog.String("resource_url", a.resourceURL),
	)

	a.account = &directoryAccount{owner: a, token: serviceToken, serviceInfo: serviceInfo, now: a.now}

	return a.account, nil
}

// LoginSilent re-authenticates with the persisted refresh token against the
// persisted service resource. Returns (nil, nil) when no prior login exists.
func (a *DirectoryAuthenticator) LoginSilent(ctx context.Context) (AccountInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return nil, ErrNotInitialized
	}

	if a.resourceURL == "" {
		return nil, nil
	}

	a.logger.Debug("starting directory silent login")

	tok, err := a.refreshServiceTokenLocked(ctx)
	if err != nil {
		return nil, failure("login_silent", err)
	}

	a.account = &directoryAccount{owner: a, token: tok, serviceInfo: a.serviceInfo, now: a.now}

	a.logger.Debug("directory silent login successful")

	return a.account, nil
}

// Logout clears all persisted directory state and the in-memory session.
func (a *DirectoryAuthenticator) Logout(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return ErrNotInitialized
	}

	a.logger.Debug("starting directory logout")

	return a.logoutLocked()
}

// AccountInfo returns the current account, or nil when logged out.
func (a *DirectoryAuthenticator) AccountInfo() AccountInfo {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.account == nil {
		return nil
	}

	return a.account
}

// logoutLocked clears persisted and in-memory state. Caller holds a.mu.
func (a *DirectoryAuthenticator) logoutLocked() error {
	err := a.cfg.Store.Clear()

	a.userID = ""
	a.resourceURL = ""
	a.serviceInfo = nil
	a.account = nil

	if err != nil {
		return failure("logout", err)
	}

	return nil
}

// authorizeDiscoveryLocked runs the interactive authorization-code exchange
// scoped to the discovery resource. Caller holds a.mu.
func (a *DirectoryAuthenticator) authorizeDiscoveryLocked(ctx context.Context, emailHint string) (*oauth2.Token, error) {
	ocfg := a.oauthConfig()

	state, err := generateState()
	if err != nil {
		return nil, failure("login", err)
	}

	authURL := ocfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("resource", discoveryResourceID),
		oauth2.SetAuthURLParam("login_hint", emailHint),
	)

	a.logger.Debug("waiting for directory login callback")

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
		oauth2.SetAuthURLParam("resource", discoveryResourceID),
	)
	if err != nil {
		return nil, failure("login", fmt.Errorf("discovery token exchange: %w", err))
	}

	return tok, nil
}

// refreshServiceTokenLocked redeems the persisted refresh token for a fresh
// service-scoped access token and persists the rotated token.
// Caller holds a.mu.
func (a *DirectoryAuthenticator) refreshServiceTokenLocked(ctx context.Context) (*oauth2.Token, error) {
	raw, ok, err := a.cfg.Store.Get(KeyToken)
	if err != nil {
		return nil, fmt.Errorf("reading persisted token: %w", err)
	}

	if !ok {
		return nil, errors.New("no persisted token for silent login")
	}

	var prev oauth2.Token
	if err := json.Unmarshal([]byte(raw), &prev); err != nil {
		return nil, fmt.Errorf("decoding persisted token: %w", err)
	}

	resource := a.resourceURL
	if a.serviceInfo != nil {
		resource = a.serviceInfo.ServiceResourceID
	}

	tok, err := a.redeemRefreshTokenLocked(ctx, prev.RefreshToken, resource)
	if err != nil {
		return nil, err
	}

	if err := a.persistTokenLocked(tok); err != nil {
		return nil, err
	}

	return tok, nil
}

// redeemRefreshTokenLocked exchanges a refresh token for an access token
// scoped to resource. Azure AD's v1 endpoint takes the resource as a form
// parameter, which the oauth2 library's refresh path cannot express, so the
// round trip is made directly. Caller holds a.mu.
func (a *DirectoryAuthenticator) redeemRefreshTokenLocked(ctx context.Context, refreshToken, resource string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, errors.New("provider returned no refresh token")
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", a.cfg.ClientID)
	form.Set("refresh_token", refreshToken)
	form.Set("resource", resource)

	endpoint := a.cfg.Endpoint.TokenURL
	if endpoint == "" {
		endpoint = directoryOAuthBase + "token"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating refresh request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := a.cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading refresh response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("refresh failed with status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		AccessToken  string          `json:"access_token"`
		RefreshToken string          `json:"refresh_token"`
		TokenType    string          `json:"token_type"`
		ExpiresIn    json.RawMessage `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding refresh response: %w", err)
	}

	tok := &oauth2.Token{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		TokenType:    parsed.TokenType,
	}

	// expires_in must become an absolute expiry or expiry checks would
	// treat the token as non-expiring. The v1 endpoint sends it as a JSON
	// string, other responses as a number.
	if secs := parseExpirySeconds(parsed.ExpiresIn); secs > 0 {
		tok.Expiry = a.now().Add(time.Duration(secs) * time.Second)
	}

	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}

	return tok, nil
}

// parseExpirySeconds reads an expires_in value that may arrive as a JSON
// number or a quoted string. Unparseable input yields zero.
func parseExpirySeconds(raw json.RawMessage) int64 {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" {
		return 0
	}

	secs, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}

	return secs
}

// persistLoginLocked writes the complete login state atomically.
// Caller holds a.mu.
func (a *DirectoryAuthenticator) persistLoginLocked(userID string, serviceInfo *ServiceInfo, tok *oauth2.Token) error {
	serviceRaw, err := json.Marshal(serviceInfo)
	if err != nil {
		return fmt.Errorf("encoding service info: %w", err)
	}

	tokenRaw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	if err := a.cfg.Store.PutAll(map[string]string{
		KeyUserID:      userID,
		KeyResourceURL: serviceInfo.ServiceEndpointURI,
		KeyServiceInfo: string(serviceRaw),
		KeyToken:       string(tokenRaw),
		KeyVersionCode: loginStateVersion,
	}); err != nil {
		return fmt.Errorf("persisting login state: %w", err)
	}

	a.userID = userID
	a.resourceURL = serviceInfo.ServiceEndpointURI
	a.serviceInfo = serviceInfo

	return nil
}

// persistTokenLocked updates just the rotated token. Caller holds a.mu.
func (a *DirectoryAuthenticator) persistTokenLocked(tok *oauth2.Token) error {
	raw, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	if err := a.cfg.Store.PutAll(map[string]string{KeyToken: string(raw)}); err != nil {
		return fmt.Errorf("persisting token: %w", err)
	}

	return nil
}

// refreshToken is the directoryAccount.Refresh entry point.
func (a *DirectoryAuthenticator) refreshToken(ctx context.Context) (*oauth2.Token, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return nil, ErrNotInitialized
	}

	if a.resourceURL == "" {
		return nil, failure("refresh", errors.New("no persisted login to refresh"))
	}

	tok, err := a.refreshServiceTokenLocked(ctx)
	if err != nil {
		return nil, failure("refresh", err)
	}

	return tok, nil
}

func (a *DirectoryAuthenticator) oauthConfig() *oauth2.Config {
	endpoint := a.cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = oauth2.Endpoint{
			AuthURL:  directoryOAuthBase + "authorize",
			TokenURL: directoryOAuthBase + "token",
		}
	}

	return &oauth2.Config{
		ClientID:    a.cfg.ClientID,
		Endpoint:    endpoint,
		RedirectURL: a.cfg.RedirectURL,
	}
}

func (a *DirectoryAuthenticator) discoveryURL() string {
	if a.cfg.DiscoveryURL != "" {
		return a.cfg.DiscoveryURL
	}

	return DiscoveryServiceURL
}

func (a *DirectoryAuthenticator) requestContext(ctx context.Context) context.Context {
	if a.cfg.HTTPClient == nil {
		return ctx
	}

	return context.WithValue(ctx, oauth2.HTTPClient, a.cfg.HTTPClient)
}

// directoryAccount is the AccountInfo for a signed-in organizational account.
type directoryAccount struct {
	owner       *DirectoryAuthenticator
	serviceInfo *ServiceInfo
	now         func() time.Time

	mu    sync.RWMutex
	token *oauth2.Token
}

func (d *directoryAccount) AccountType() AccountType { return AccountTypeDirectory }

func (d *directoryAccount) ServiceRoot() string {
	return d.serviceInfo.ServiceEndpointURI
}

func (d *directoryAccount) AccessToken() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.token.AccessToken
}

func (d *directoryAccount) IsExpired() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return expired(d.token.Expiry, d.now)
}

func (d *directoryAccount) Refresh(ctx context.Context) error {
	fresh, err := d.owner.refreshToken(ctx)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.token = fresh
	d.mu.Unlock()

	return nil
}
