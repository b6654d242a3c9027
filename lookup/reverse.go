package lookup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	geojson "github.com/paulmach/go.geojson"
)

const (
	// NominatimBaseURL is the public Nominatim API endpoint
	NominatimBaseURL = "https://nominatim.openstreetmap.org"

	// Nominatim usage policy: at most one request per second.
	minRequestInterval = time.Second
)

// Geocoder turns coordinates into a street address using Nominatim.
// Concurrent callers are spaced interval apart.
type Geocoder struct {
	httpClient *http.Client
	baseURL    string
	interval   time.Duration

	mu   sync.Mutex
	next time.Time
}

func NewGeocoder(baseURL string, httpClient *http.Client) *Geocoder {
	if baseURL == "" {
		baseURL = NominatimBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Geocoder{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		interval:   minRequestInterval,
	}
}

// awaitSlot reserves the next request slot and waits for it. A cancelled
// caller gives up its wait but not its slot.
func (g *Geocoder) awaitSlot(ctx context.Context) error {
	g.mu.Lock()
	slot := g.next
	if now := time.Now(); slot.Before(now) {
		slot = now
	}
	g.next = slot.Add(g.interval)
	g.mu.Unlock()

	d := time.Until(slot)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReverseGeocode returns the display name of the place at lat, lon.
func (g *Geocoder) ReverseGeocode(ctx context.Context, lat, lon float64) (string, error) {
	if err := g.awaitSlot(ctx); err != nil {
		return "", fmt.Errorf("waiting for nominatim: %w", err)
	}

	params := url.Values{}
	params.Set("lat", fmt.Sprintf("%f", lat))
	params.Set("lon", fmt.Sprintf("%f", lon))
	params.Set("format", "geojson")
	params.Set("addressdetails", "1")
	params.Set("zoom", "18") // Building-level detail

	reqURL := fmt.Sprintf("%s/reverse?%s", g.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("nominatim returned status %d: %s", resp.StatusCode, string(body))
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(fc.Features) == 0 {
		return "", fmt.Errorf("no address found at %f,%f", lat, lon)
	}
	name, err := fc.Features[0].PropertyString("display_name")
	if err != nil || name == "" {
		return "", fmt.Errorf("no display_name at %f,%f", lat, lon)
	}
	return name, nil
}
