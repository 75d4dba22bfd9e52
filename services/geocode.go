package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vibe-drinks/config"
)

// AddressQuery is the free-form address a customer types at checkout.
type AddressQuery struct {
	Street       string `json:"street"`
	Number       string `json:"number"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
}

type GeoPoint struct {
	Lat         float64
	Lng         float64
	DisplayName string
}

// Geocoder resolves an address to coordinates. Every failure is reported as
// ErrGeocodeUnresolved.
type Geocoder interface {
	Resolve(ctx context.Context, addr AddressQuery) (*GeoPoint, error)
}

// NominatimGeocoder queries an OpenStreetMap Nominatim compatible search API.
type NominatimGeocoder struct {
	baseURL   string
	userAgent string
	country   string
	client    *http.Client
	log       *slog.Logger
}

func NewNominatimGeocoder(cfg config.GeocodingConfig, log *slog.Logger) *NominatimGeocoder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NominatimGeocoder{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		country:   cfg.Country,
		client:    &http.Client{Timeout: timeout},
		log:       log,
	}
}

// QueryString joins the non-empty parts as "street, number, neighborhood,
// city, state, country".
func (g *NominatimGeocoder) QueryString(addr AddressQuery) string {
	parts := make([]string, 0, 6)
	for _, p := range []string{addr.Street, addr.Number, addr.Neighborhood, addr.City, addr.State, g.country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func (g *NominatimGeocoder) Resolve(ctx context.Context, addr AddressQuery) (*GeoPoint, error) {
	q := g.QueryString(addr)
	pt, status, err := g.search(ctx, q)
	if err != nil {
		g.log.Warn("geocoding failed", "address", q, "status", status, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrGeocodeUnresolved, err)
	}
	return pt, nil
}

func (g *NominatimGeocoder) search(ctx context.Context, q string) (*GeoPoint, int, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("limit", "1")
	params.Set("q", q)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	if len(results) == 0 {
		return nil, resp.StatusCode, fmt.Errorf("no match")
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("bad lat %q", results[0].Lat)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("bad lon %q", results[0].Lon)
	}
	return &GeoPoint{Lat: lat, Lng: lng, DisplayName: results[0].DisplayName}, resp.StatusCode, nil
}
