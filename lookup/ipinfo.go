// Package lookup talks to the public IP geolocation and reverse geocoding
// services.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"device-report/models"
)

const (
	DefaultIPLookupURL = "https://ipapi.co/json/"

	// UserAgent identifies the client, Nominatim rejects anonymous callers.
	UserAgent = "device-report/1.0"
)

type ipapiResponse struct {
	IP          string `json:"ip"`
	Org         string `json:"org"`
	City        string `json:"city"`
	Region      string `json:"region"`
	CountryName string `json:"country_name"`
	Timezone    string `json:"timezone"`

	// ipapi.co reports failures such as rate limiting in a 2xx body.
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
}

// IPClient fetches the public IP of the device and what the lookup service
// knows about it.
type IPClient struct {
	httpClient *http.Client
	url        string
}

// NewIPClient returns a client for url. A nil httpClient means a plain
// client without a timeout of its own.
func NewIPClient(url string, httpClient *http.Client) *IPClient {
	if url == "" {
		url = DefaultIPLookupURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &IPClient{httpClient: httpClient, url: url}
}

func (c *IPClient) Lookup(ctx context.Context) (*models.IPInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Failed to fetch IP information: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("Failed to fetch IP information: status %d", resp.StatusCode)
	}

	var body ipapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode IP information: %w", err)
	}
	if body.Error {
		reason := body.Reason
		if reason == "" {
			reason = "unknown error"
		}
		return nil, fmt.Errorf("Failed to fetch IP information: %s", reason)
	}
	if body.IP == "" {
		return nil, errors.New("Failed to fetch IP information: response has no ip")
	}
	return &models.IPInfo{
		IP:       body.IP,
		ISP:      body.Org,
		City:     body.City,
		Region:   body.Region,
		Country:  body.CountryName,
		Timezone: body.Timezone,
	}, nil
}
