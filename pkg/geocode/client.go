// Package geocode resolves court addresses to coordinates with the US Census
// geocoder: the one-line endpoint for single addresses and the batch endpoint
// for backfills.
package geocode

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://geocoding.geo.census.gov/geocoder"

// MaxBatch is the Census batch endpoint's per-request address limit.
const MaxBatch = 10000

// Client geocodes addresses.
type Client interface {
	// Geocode geocodes a single address. An unmatched address is not an
	// error; the Result has Matched false.
	Geocode(ctx context.Context, addr AddressInput) (*Result, error)

	// BatchGeocode geocodes addresses in one request. Results are index
	// aligned with addrs.
	BatchGeocode(ctx context.Context, addrs []AddressInput) ([]Result, error)
}

// AddressInput is an address to geocode. OneLine, when set, is sent as-is to
// the one-line endpoint; the structured fields feed the batch endpoint.
type AddressInput struct {
	ID      string
	OneLine string
	Street  string
	City    string
	State   string
	ZipCode string
}

// Result holds the geocoding output for an address.
type Result struct {
	Latitude       float64
	Longitude      float64
	Quality        string // "exact" or "non_exact"
	MatchedAddress string
	Matched        bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit. Non-positive values keep
// the default.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		if rps > 0 {
			burst := int(rps)
			if burst < 1 {
				burst = 1
			}
			g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// WithBaseURL points the client at a different geocoder host.
func WithBaseURL(base string) Option {
	return func(g *geocoder) {
		if base != "" {
			g.baseURL = strings.TrimSuffix(base, "/")
		}
	}
}

type geocoder struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
}

// NewClient creates a Census-backed Client.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		limiter:    rate.NewLimiter(5, 5),
		baseURL:    defaultBaseURL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}
