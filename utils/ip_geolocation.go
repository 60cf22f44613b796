package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/netip"
	"time"
)

const defaultGeoEndpoint = "http://ip-api.com/json/"

// GeoLocator resolves an IP address to "City, Country". Lookups are best
// effort: a disabled locator, a private address or any failure never
// produces an error, only a placeholder.
type GeoLocator struct {
	enabled  bool
	endpoint string
	client   *http.Client
}

func NewGeoLocator(enabled bool) *GeoLocator {
	return &GeoLocator{
		enabled:  enabled,
		endpoint: defaultGeoEndpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// WithEndpoint points lookups at another ip-api compatible service.
func (g *GeoLocator) WithEndpoint(endpoint string) *GeoLocator {
	g.endpoint = endpoint
	return g
}

func isLocal(ipAddress string) bool {
	addr, err := netip.ParseAddr(ipAddress)
	if err != nil {
		return false
	}
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast()
}

func (g *GeoLocator) GetIPLocation(ctx context.Context, ipAddress string) string {
	if g == nil || !g.enabled {
		return ""
	}
	if isLocal(ipAddress) {
		return "Local"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+ipAddress, nil)
	if err != nil {
		return "Unknown"
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "Unknown"
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "Unknown"
	}

	var result struct {
		Country string `json:"country"`
		City    string `json:"city"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "Unknown"
	}

	if result.City != "" && result.Country != "" {
		return fmt.Sprintf("%s, %s", result.City, result.Country)
	}

	return "Unknown"
}
