// Package geo geolocates node hosts, online through ip-api or offline from MaxMind databases.
package geo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Provider names, as accepted by GEO_PROVIDER.
const (
	ProviderIPAPI   = "ipapi"
	ProviderMaxMind = "maxmind"
)

// cloudflareContinent replaces the continent of hosts proxied by Cloudflare: their
// addresses say nothing about where the node runs.
const cloudflareContinent = "cloudflare"

var ErrLookupFailed = errors.New("geolocation lookup failed")

// Location is a normalized geolocation result.
type Location struct {
	IP        string  `json:"ip"`
	Continent string  `json:"continent"`
	Country   string  `json:"country"`
	Region    string  `json:"region"`
	City      string  `json:"city"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	ISP       string  `json:"isp"`
	Org       string  `json:"org"`
	AS        string  `json:"as"`
}

// Locator resolves a host name or IP to a Location.
type Locator interface {
	Locate(ctx context.Context, query string) (*Location, error)
}

// maskCloudflare overwrites the continent when the ISP is exactly "cloudflare", in any case.
func maskCloudflare(l *Location) {
	if strings.EqualFold(l.ISP, cloudflareContinent) {
		l.Continent = cloudflareContinent
	}
}

// Host extracts the host name from a node service URL such as https://node1.example.com:443.
func Host(serviceURL string) (string, error) {
	u, err := url.Parse(serviceURL)
	if err != nil {
		return "", fmt.Errorf("parse service url %q: %w", serviceURL, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("service url %q has no host", serviceURL)
	}
	return u.Hostname(), nil
}

func lookupFailed(query, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrLookupFailed, query, reason)
}
