package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// directoryServer mocks the three endpoints a directory login touches: the
// token endpoint (code exchange and refresh-token redemption) and the
// discovery service.
func directoryServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()

	var resources []string

	mux := http.NewServeMux()

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		resources = append(resources, r.Form.Get("resource"))

		w.Header().Set("Content-Type", "application/json")

		switch r.Form.Get("grant_type") {
		case "refresh_token":
			assert.NotEmpty(t, r.Form.Get("refresh_token"))
			fmt.Fprint(w, `{"access_token":"service-access","refresh_token":"service-refresh","token_type":"Bearer","expires_in":"3600"}`)
		default:
			fmt.Fprint(w, `{"access_token":"discovery-access","refresh_token":"discovery-refresh","token_type":"Bearer","expires_in":3600}`)
		}
	})

	mux.HandleFunc("/discovery", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer discovery-access", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"value":[
			{"serviceResourceId":"https://contoso.mail/","serviceApiVersion":"v2.0","capability":"Mail","serviceEndpointUri":"https://contoso.mail/api"},
			{"serviceResourceId":"https://contoso-my.sharepoint.com/","serviceApiVersion":"v2.0","capability":"MyFiles","serviceEndpointUri":"https://contoso-my.sharepoint.com/_api/v2.0"}
		]}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, &resources
}

func newTestDirectory(t *testing.T, store TokenStore, ui LoginUI, srv *httptest.Server) *DirectoryAuthenticator {
	t.Helper()

	cfg := DirectoryConfig{
		ClientID:    "client-1",
		RedirectURL: "https://localhost/callback",
		Store:       store,
		UI:          ui,
	}

	if srv != nil {
		cfg.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/authorize", TokenURL: srv.URL + "/token"}
		cfg.DiscoveryURL = srv.URL + "/discovery"
		cfg.HTTPClient = srv.Client()
	} else {
		cfg.HTTPClient = noNetworkClient(t)
	}

	return NewDirectoryAuthenticator(cfg)
}

func TestDirectoryInit_FlushesPartialState(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.PutAll(map[string]string{
		KeyUserID:      "bob@contoso.com",
		KeyResourceURL: "https://contoso-my.sharepoint.com/_api/v2.0",
		// KeyServiceInfo deliberately absent.
	}))

	a := newTestDirectory(t, store, nil, nil)
	require.NoError(t, a.Init(context.Background()))

	_, ok, err := store.Get(KeyUserID)
	require.NoError(t, err)
	assert.False(t, ok, "partial state should have been flushed")
}

func TestDirectoryInit_FlushesVersionMismatch(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.PutAll(map[string]string{
		KeyUserID:      "bob@contoso.com",
		KeyResourceURL: "https://contoso-my.sharepoint.com/_api/v2.0",
		KeyServiceInfo: `{"serviceResourceId":"https://contoso-my.sharepoint.com/","serviceApiVersion":"v2.0","capability":"MyFiles","serviceEndpointUri":"https://contoso-my.sharepoint.com/_api/v2.0"}`,
		KeyToken:       `{"access_token":"a","refresh_token":"r"}`,
		KeyVersionCode: "0",
	}))

	// No server: versioned-out state must be flushed at Init, so the silent
	// login below returns absent instead of attempting a refresh round trip.
	a := newTestDirectory(t, store, nil, nil)
	require.NoError(t, a.Init(context.Background()))

	_, ok, err := store.Get(KeyUserID)
	require.NoError(t, err)
	assert.False(t, ok, "versioned-out state should have been flushed")

	account, err := a.LoginSilent(context.Background())
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestDirectoryLogin(t *testing.T) {
	srv, resources := directoryServer(t)

	store := NewMemoryStore()
	ui := &echoUI{code: "goodcode"}
	a := newTestDirectory(t, store, ui, srv)
	require.NoError(t, a.Init(context.Background()))

	account, err := a.Login(context.Background(), "bob@contoso.com")
	require.NoError(t, err)
	assert.Equal(t, AccountTypeDirectory, account.AccountType())
	assert.Equal(t, "service-access", account.AccessToken())
	assert.Equal(t, "https://contoso-my.sharepoint.com/_api/v2.0", account.ServiceRoot())
	assert.False(t, account.IsExpired())

	// First round trip is scoped to the discovery resource, second to the
	// tenant's files service.
	require.Len(t, *resources, 2)
	assert.Equal(t, discoveryResourceID, (*resources)[0])
	assert.Equal(t, "https://contoso-my.sharepoint.com/", (*resources)[1])

	for _, key := range []string{KeyUserID, KeyResourceURL, KeyServiceInfo, KeyToken, KeyVersionCode} {
		_, ok, getErr := store.Get(key)
		require.NoError(t, getErr)
		assert.True(t, ok, key)
	}
}

func TestDirectoryLoginSilent_NoState(t *testing.T) {
	a := newTestDirectory(t, NewMemoryStore(), nil, nil)
	require.NoError(t, a.Init(context.Background()))

	account, err := a.LoginSilent(context.Background())
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestDirectoryLoginSilent_RestoresLogin(t *testing.T) {
	srv, resources := directoryServer(t)

	store := NewMemoryStore()

	// Complete an interactive login, then start over with a fresh
	// authenticator on the same store.
	first := newTestDirectory(t, store, &echoUI{code: "goodcode"}, srv)
	require.NoError(t, first.Init(context.Background()))
	_, err := first.Login(context.Background(), "bob@contoso.com")
	require.NoError(t, err)

	second := newTestDirectory(t, store, nil, srv)
	require.NoError(t, second.Init(context.Background()))

	account, err := second.LoginSilent(context.Background())
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, "service-access", account.AccessToken())
	assert.Equal(t, "https://contoso-my.sharepoint.com/_api/v2.0", account.ServiceRoot())

	// Silent login redeems against the persisted service resource, not the
	// discovery resource.
	assert.Equal(t, "https://contoso-my.sharepoint.com/", (*resources)[len(*resources)-1])
}

func TestDirectoryLogout(t *testing.T) {
	srv, _ := directoryServer(t)

	store := NewMemoryStore()
	a := newTestDirectory(t, store, &echoUI{code: "goodcode"}, srv)
	require.NoError(t, a.Init(context.Background()))

	_, err := a.Login(context.Background(), "bob@contoso.com")
	require.NoError(t, err)

	require.NoError(t, a.Logout(context.Background()))
	assert.Nil(t, a.AccountInfo())

	_, ok, err := store.Get(KeyResourceURL)
	require.NoError(t, err)
	assert.False(t, ok)

	account, err := a.LoginSilent(context.Background())
	require.NoError(t, err)
	assert.Nil(t, account)
}

func TestDirectoryRefreshTokenCarryForward(t *testing.T) {
	// A redemption response without a rotated refresh token keeps the one
	// it was redeemed with.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"a1","token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	a := newTestDirectory(t, NewMemoryStore(), nil, nil)
	a.cfg.Endpoint.TokenURL = srv.URL + "/token"
	a.cfg.HTTPClient = srv.Client()
	require.NoError(t, a.Init(context.Background()))

	tok, err := a.redeemRefreshTokenLocked(context.Background(), "refresh-keep", "https://resource/")
	require.NoError(t, err)
	assert.Equal(t, "a1", tok.AccessToken)
	assert.Equal(t, "refresh-keep", tok.RefreshToken)
	assert.False(t, tok.Expiry.IsZero())
}
