package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"vibe-drinks/config"
)

// HaversineDistanceKm is the great-circle distance between two points,
// rounded to 2 decimals.
func HaversineDistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return round2(R * c)
}

type FeeResult struct {
	Fee         float64
	WithinRange bool
}

// ComputeFee prices a delivery by distance. WithinRange is advisory: the
// caller decides whether to refuse distant addresses.
func ComputeFee(distanceKm, ratePerKm, minFee, maxDistanceKm float64) FeeResult {
	return FeeResult{
		Fee:         round2(math.Max(distanceKm*ratePerKm, minFee)),
		WithinRange: distanceKm <= maxDistanceKm,
	}
}

// EstimateMinutes is preparation time plus travel time, rounded up.
func EstimateMinutes(distanceKm float64, prepMinutes int, minutesPerKm float64) int {
	return prepMinutes + int(math.Ceil(distanceKm*minutesPerKm))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

type QuoteSource string

const (
	QuoteFromGeocode QuoteSource = "geocode"
	QuoteFromZone    QuoteSource = "zone"
)

// Quote is the result of pricing one address. Lat, Lng and DistanceKm are
// only set for geocoded quotes.
type Quote struct {
	Source      QuoteSource
	DistanceKm  *float64
	Fee         float64
	WithinRange bool
	ETAMinutes  int
	Lat         *float64
	Lng         *float64
	DisplayName string
	Zone        Zone
}

// DeliveryService turns a customer address into a fee and ETA, falling back
// to the neighborhood zone table when geocoding does not resolve.
type DeliveryService struct {
	geocoder Geocoder
	zones    *ZoneTable
	cfg      config.DeliveryConfig
	log      *slog.Logger
}

func NewDeliveryService(geocoder Geocoder, zones *ZoneTable, cfg config.DeliveryConfig, log *slog.Logger) *DeliveryService {
	return &DeliveryService{geocoder: geocoder, zones: zones, cfg: cfg, log: log}
}

func (s *DeliveryService) Quote(ctx context.Context, addr AddressQuery) (*Quote, error) {
	if addr.Street == "" && addr.Neighborhood == "" {
		return nil, invalid("address", "street or neighborhood is required")
	}

	pt, err := s.geocoder.Resolve(ctx, addr)
	if err == nil {
		dist := HaversineDistanceKm(s.cfg.StoreLat, s.cfg.StoreLng, pt.Lat, pt.Lng)
		fee := ComputeFee(dist, s.cfg.RatePerKm, s.cfg.MinFee, s.cfg.MaxDistanceKm)
		lat, lng := pt.Lat, pt.Lng
		return &Quote{
			Source:      QuoteFromGeocode,
			DistanceKm:  &dist,
			Fee:         fee.Fee,
			WithinRange: fee.WithinRange,
			ETAMinutes:  EstimateMinutes(dist, s.cfg.PrepMinutes, s.cfg.MinutesPerKm),
			Lat:         &lat,
			Lng:         &lng,
			DisplayName: pt.DisplayName,
		}, nil
	}
	if !errors.Is(err, ErrGeocodeUnresolved) {
		return nil, fmt.Errorf("geocode: %w", err)
	}

	zone, ok := s.zones.Lookup(addr.Neighborhood)
	if !ok {
		s.log.Warn("delivery fee unresolved", "neighborhood", addr.Neighborhood, "city", addr.City)
		return nil, ErrDeliveryUnresolved
	}
	s.log.Info("delivery fee from zone table", "neighborhood", addr.Neighborhood, "zone", zone.Name)
	return &Quote{
		Source:      QuoteFromZone,
		Fee:         zone.Fee,
		WithinRange: true,
		ETAMinutes:  s.cfg.PrepMinutes + zone.TravelMinutes,
		Zone:        zone,
	}, nil
}
