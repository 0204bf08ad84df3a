package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// echoUI completes the interactive flow immediately, echoing the state
// parameter back the way a real provider redirect would.
type echoUI struct {
	code    string
	err     error
	lastURL string
}

func (u *echoUI) PresentAuth(_ context.Context, authURL, redirectURI string) (*url.URL, error) {
	u.lastURL = authURL

	if u.err != nil {
		return nil, u.err
	}

	parsed, err := url.Parse(authURL)
	if err != nil {
		return nil, err
	}

	state := parsed.Query().Get("state")

	return url.Parse(fmt.Sprintf("%s?code=%s&state=%s", redirectURI, u.code, state))
}

// roundTripFunc lets a test fail the moment any network call is attempted.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func noNetworkClient(t *testing.T) *http.Client {
	t.Helper()

	return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		t.Errorf("unexpected network call to %s", r.URL)
		return nil, errors.New("network disabled")
	})}
}

func tokenServer(t *testing.T, accessToken string) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":%q,"refresh_token":"refresh-1","token_type":"Bearer","expires_in":3600}`, accessToken)
	}))
}

func newTestConsumer(t *testing.T, store TokenStore, ui LoginUI, srv *httptest.Server) *ConsumerAuthenticator {
	t.Helper()

	cfg := ConsumerConfig{
		ClientID:    "client-1",
		Scopes:      []string{"onedrive.readwrite", "offline_access"},
		Store:       store,
		UI:          ui,
		RedirectURL: "https://login.microsoftonline.com/common/oauth2/nativeclient",
	}

	if srv != nil {
		cfg.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/authorize", TokenURL: srv.URL + "/token"}
		cfg.HTTPClient = srv.Client()
	} else {
		cfg.HTTPClient = noNetworkClient(t)
	}

	return NewConsumerAuthenticator(cfg)
}

func TestConsumerInit_Idempotent(t *testing.T) {
	a := newTestConsumer(t, NewMemoryStore(), nil, nil)

	require.NoError(t, a.Init(context.Background()))
	require.NoError(t, a.Init(context.Background()))
}

func TestConsumerInit_MissingClientID(t *testing.T) {
	a := NewConsumerAuthenticator(ConsumerConfig{Store: NewMemoryStore()})

	err := a.Init(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestConsumerInit_FlushesPartialState(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.PutAll(map[string]string{
		KeyUserID:      "alice@example.com",
		KeyVersionCode: loginStateVersion,
		// KeyToken deliberately absent.
	}))

	a := newTestConsumer(t, store, nil, nil)
	require.NoError(t, a.Init(context.Background()))

	_, ok, err := store.Get(KeyUserID)
	require.NoError(t, err)
	assert.False(t, ok, "partial state should have been flushed")
}

func TestConsumerInit_FlushesVersionMismatch(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.PutAll(map[string]string{
		KeyUserID:      "alice@example.com",
		KeyToken:       `{"access_token":"a"}`,
		KeyVersionCode: "0",
	}))

	a := newTestConsumer(t, store, nil, nil)
	require.NoError(t, a.Init(context.Background()))

	_, ok, err := store.Get(KeyToken)
	require.NoError(t, err)
	assert.False(t, ok, "versioned-out state should have been flushed")
}

func TestConsumerLogin_BeforeInit(t *testing.T) {
	a := newTestConsumer(t, NewMemoryStore(), &echoUI{code: "c"}, nil)

	_, err := a.Login(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestConsumerLogin(t *testing.T) {
	srv := tokenServer(t, "access-abc")
	defer srv.Close()

	store := NewMemoryStore()
	ui := &echoUI{code: "goodcode"}
	a := newTestConsumer(t, store, ui, srv)
	require.NoError(t, a.Init(context.Background()))

	account, err := a.Login(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, AccountTypeConsumer, account.AccountType())
	assert.Equal(t, "access-abc", account.AccessToken())
	assert.Equal(t, ConsumerServiceRoot, account.ServiceRoot())
	assert.False(t, account.IsExpired())

	// PKCE and login hint must be on the authorize URL.
	authURL, err := url.Parse(ui.lastURL)
	require.NoError(t, err)
	assert.Equal(t, "S256", authURL.Query().Get("code_challenge_method"))
	assert.NotEmpty(t, authURL.Query().Get("code_challenge"))
	assert.Equal(t, "alice@example.com", authURL.Query().Get("login_hint"))

	// Full login state must be persisted for later silent logins.
	userID, ok, err := store.Get(KeyUserID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", userID)

	_, ok, err = store.Get(KeyToken)
	require.NoError(t, err)
	assert.True(t, ok)

	version, _, err := store.Get(KeyVersionCode)
	require.NoError(t, err)
	assert.Equal(t, loginStateVersion, version)
}

func TestConsumerLogin_DefaultUserID(t *testing.T) {
	srv := tokenServer(t, "access-abc")
	defer srv.Close()

	store := NewMemoryStore()
	a := newTestConsumer(t, store, &echoUI{code: "goodcode"}, srv)
	require.NoError(t, a.Init(context.Background()))

	_, err := a.Login(context.Background(), "")
	require.NoError(t, err)

	userID, _, err := store.Get(KeyUserID)
	require.NoError(t, err)
	assert.Equal(t, defaultUserID, userID)
}

func TestConsumerLogin_Cancelled(t *testing.T) {
	a := newTestConsumer(t, NewMemoryStore(), &echoUI{err: fmt.Errorf("dismissed: %w", ErrCancelled)}, nil)
	require.NoError(t, a.Init(context.Background()))

	_, err := a.Login(context.Background(), "")
	assert.ErrorIs(t, err, ErrCancelled)
}

type staticCallbackUI struct{ callback string }

func (u *staticCallbackUI) PresentAuth(_ context.Context, _, _ string) (*url.URL, error) {
	return url.Parse(u.callback)
}

func TestConsumerLogin_StateMismatch(t *testing.T) {
	ui := &staticCallbackUI{callback: "https://localhost/callback?code=c&state=forged"}
	a := newTestConsumer(t, NewMemoryStore(), ui, nil)
	require.NoError(t, a.Init(context.Background()))

	_, err := a.Login(context.Background(), "")
	require.ErrorIs(t, err, ErrFailure)
	assert.Contains(t, err.Error(), "state mismatch")
}

func TestConsumerLoginSilent_NoState(t *testing.T) {
	// No persisted login: silent login reports absence without touching
	// the network.
	a := newTestConsumer(t, NewMemoryStore(), nil, nil)
	require.NoError(t, a.Init(context.Background()))

	account, err := a.LoginSilent(context.Background())
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestConsumerLoginSilent_RefreshesPersistedToken(t *testing.T) {
	srv := tokenServer(t, "access-fresh")
	defer srv.Close()

	store := NewMemoryStore()
	expired := time.Now().Add(-time.Hour).Format(time.RFC3339)
	require.NoError(t, store.PutAll(map[string]string{
		KeyUserID:      "alice@example.com",
		KeyToken:       fmt.Sprintf(`{"access_token":"access-stale","refresh_token":"refresh-0","token_type":"Bearer","expiry":%q}`, expired),
		KeyVersionCode: loginStateVersion,
	}))

	a := newTestConsumer(t, store, nil, srv)
	require.NoError(t, a.Init(context.Background()))

	account, err := a.LoginSilent(context.Background())
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "access-fresh", account.AccessToken())

	// The rotated token must be persisted.
	raw, ok, err := store.Get(KeyToken)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, "access-fresh")
}

func TestConsumerLogout(t *testing.T) {
	srv := tokenServer(t, "access-abc")
	defer srv.Close()

	store := NewMemoryStore()
	a := newTestConsumer(t, store, &echoUI{code: "goodcode"}, srv)
	require.NoError(t, a.Init(context.Background()))

	_, err := a.Login(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, a.AccountInfo())

	require.NoError(t, a.Logout(context.Background()))
	assert.Nil(t, a.AccountInfo())

	_, ok, err := store.Get(KeyToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsumerRefresh(t *testing.T) {
	srv := tokenServer(t, "access-1")
	defer srv.Close()

	store := NewMemoryStore()
	a := newTestConsumer(t, store, &echoUI{code: "goodcode"}, srv)
	require.NoError(t, a.Init(context.Background()))

	account, err := a.Login(context.Background(), "alice@example.com")
	require.NoError(t, err)

	require.NoError(t, account.Refresh(context.Background()))
	assert.Equal(t, "access-1", account.AccessToken())
	assert.False(t, account.IsExpired())
}
