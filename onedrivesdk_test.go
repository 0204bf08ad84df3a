package onedrivesdk

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-sdk-go/auth"
)

// staticAuthenticator serves a fixed account without any provider round
// trips, standing in for a resolver in pipeline tests.
type staticAuthenticator struct {
	account auth.AccountInfo
}

func (s *staticAuthenticator) Init(context.Context) error { return nil }

func (s *staticAuthenticator) Login(context.Context, string) (auth.AccountInfo, error) {
	return s.account, nil
}

func (s *staticAuthenticator) LoginSilent(context.Context) (auth.AccountInfo, error) {
	return s.account, nil
}

func (s *staticAuthenticator) Logout(context.Context) error { return nil }

func (s *staticAuthenticator) AccountInfo() auth.AccountInfo { return s.account }

type staticAccount struct {
	root  string
	token string
}

func (a *staticAccount) AccountType() auth.AccountType { return auth.AccountTypeConsumer }
func (a *staticAccount) AccessToken() string           { return a.token }
func (a *staticAccount) ServiceRoot() string           { return a.root }
func (a *staticAccount) IsExpired() bool               { return false }
func (a *staticAccount) Refresh(context.Context) error { return nil }

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{
		Authenticator: &staticAuthenticator{account: &staticAccount{root: srv.URL, token: "test-token"}},
		HTTPClient:    srv.Client(),
	})
	require.NoError(t, err)

	return client, srv
}

func TestNew_RequiresAuthenticator(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestClient_DefaultDrive(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/drive", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"8bf6ae90006c4a4c","driveType":"personal","quota":{"remaining":983887466461}}`)
	}))

	drive, err := client.DefaultDrive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "personal", drive.DriveType)
	assert.Equal(t, int64(983887466461), drive.Quota.Remaining)
}

func TestClient_NotSignedIn(t *testing.T) {
	client, err := New(Config{Authenticator: &staticAuthenticator{}})
	require.NoError(t, err)

	_, err = client.DefaultDrive(context.Background())
	assert.ErrorContains(t, err, "not signed in")
}

func TestClient_ItemByPath_EncodesName(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/drive/root:/p%C3%A4iv%C3%A4.txt", r.URL.EscapedPath())

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"i1","name":"päivä.txt"}`)
	}))

	item, err := client.ItemByPath(context.Background(), "päivä.txt")
	require.NoError(t, err)
	assert.Equal(t, "i1", item.ID)
}

func TestClient_Download_NoContent(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))

	// No content means no stream: callers must nil-check before Close.
	body, err := client.Download(context.Background(), "item-1")
	require.NoError(t, err)
	assert.Nil(t, body)
}

func TestClient_UploadChunked(t *testing.T) {
	const totalSize = 5

	var client *Client

	mux := http.NewServeMux()
	mux.HandleFunc("/drive/items/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"uploadUrl":"%s/upload","nextExpectedRanges":["0-"]}`, serverURL(client))
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.Header.Get("Content-Range") {
		case fmt.Sprintf("bytes 0-2/%d", totalSize):
			fmt.Fprintf(w, `{"uploadUrl":"%s/upload","nextExpectedRanges":["3-4"]}`, serverURL(client))
		case fmt.Sprintf("bytes 3-4/%d", totalSize):
			fmt.Fprint(w, `{"id":"uploaded","name":"data.bin","size":5}`)
		default:
			http.Error(w, "unexpected range "+r.Header.Get("Content-Range"), http.StatusBadRequest)
		}
	})

	client, _ = newTestClient(t, mux)

	item, err := client.UploadChunked(context.Background(), "parent", "data.bin", bytes.NewReader([]byte{1, 2, 3, 4, 5}), totalSize, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, "uploaded", item.ID)
	assert.Equal(t, int64(5), item.Size)
}

// serverURL recovers the mock server base URL from the signed-in account.
func serverURL(c *Client) string {
	return c.authenticator.AccountInfo().ServiceRoot()
}
