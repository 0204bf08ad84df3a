package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectMyFilesService(t *testing.T) {
	services := []ServiceInfo{
		{Capability: "Mail", ServiceAPIVersion: "v2.0"},
		{Capability: "MyFiles", ServiceAPIVersion: "v1.0"},
		{Capability: "myfiles", ServiceAPIVersion: "V2.0", ServiceEndpointURI: "https://contoso-my.sharepoint.com/_api/v2.0"},
	}

	svc, err := selectMyFilesService(services)
	require.NoError(t, err)
	assert.Equal(t, "https://contoso-my.sharepoint.com/_api/v2.0", svc.ServiceEndpointURI)
}

func TestSelectMyFilesService_NoMatch(t *testing.T) {
	_, err := selectMyFilesService([]ServiceInfo{{Capability: "Mail", ServiceAPIVersion: "v2.0"}})
	assert.Error(t, err)
}

func TestFetchServices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer discovery-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":[{"serviceResourceId":"https://contoso-my.sharepoint.com/","serviceApiVersion":"v2.0","capability":"MyFiles","serviceEndpointUri":"https://contoso-my.sharepoint.com/_api/v2.0"}]}`))
	}))
	defer srv.Close()

	services, err := fetchServices(context.Background(), srv.Client(), srv.URL, "discovery-token")
	require.NoError(t, err)
	require.Len(t, services, 1)
	assert.Equal(t, "https://contoso-my.sharepoint.com/", services[0].ServiceResourceID)
}

func TestFetchServices_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := fetchServices(context.Background(), srv.Client(), srv.URL, "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
