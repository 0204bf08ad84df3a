package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Office discovery service endpoints. Directory accounts do not have a fixed
// OneDrive root; the discovery service resolves the tenant-specific one.
const (
	// DiscoveryServiceURL enumerates the services the signed-in user can reach.
	DiscoveryServiceURL = "https://api.office.com/discovery/v2.0/me/Services"

	// discoveryResourceID is the OAuth resource the first directory login
	// round trip is scoped to.
	discoveryResourceID = "https://api.office.com/discovery/"
)

// Discovery selection criteria, matched case-insensitively.
const (
	myFilesCapability = "MyFiles"
	myFilesAPIVersion = "v2.0"
)

// ServiceInfo describes one service entry from the discovery response.
// Persisted verbatim (as JSON) so silent logins skip rediscovery.
type ServiceInfo struct {
	ServiceResourceID  string `json:"serviceResourceId"`
	ServiceAPIVersion  string `json:"serviceApiVersion"`
	Capability         string `json:"capability"`
	ServiceEndpointURI string `json:"serviceEndpointUri"`
}

// discoveryResponse mirrors the discovery service JSON envelope.
type discoveryResponse struct {
	Value []ServiceInfo `json:"value"`
}

// fetchServices lists the user's services with a bearer token for the
// discovery resource.
func fetchServices(ctx context.Context, client *http.Client, endpoint, accessToken string) ([]ServiceInfo, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating discovery request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body) //nolint:errcheck // best-effort read for error message
		return nil, fmt.Errorf("discovery request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var dr discoveryResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("decoding discovery response: %w", err)
	}

	return dr.Value, nil
}

// selectMyFilesService picks the OneDrive files service from a discovery
// listing. Absence of a match is an authentication failure: the tenant has
// no OneDrive the user can reach.
func selectMyFilesService(services []ServiceInfo) (*ServiceInfo, error) {
	for i := range services {
		if strings.EqualFold(services[i].Capability, myFilesCapability) &&
			strings.EqualFold(services[i].ServiceAPIVersion, myFilesAPIVersion) {
			return &services[i], nil
		}
	}

	return nil, errors.New("no files service found in discovery response")
}
