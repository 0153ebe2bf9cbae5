// Package provider defines the provider-agnostic transit data interface and
// the plumbing shared by its implementations.
package provider

import (
	"context"
	"encoding/json"
	"time"

	"transit-reconciler/internal/transit"
)

const (
	DefaultDuration       = 15 // minutes
	DefaultStationResults = 10
	DefaultNearbyResults  = 8
)

type DepartureQuery struct {
	Station  transit.Station
	When     time.Time
	Duration int // minutes
	Type     transit.TravelType
	// Localtime asks for times as the station reports them, without offset correction.
	Localtime bool
}

// WithDefaults fills a zero Duration.
func (q DepartureQuery) WithDefaults() DepartureQuery {
	if q.Duration <= 0 {
		q.Duration = DefaultDuration
	}
	return q
}

// Provider is implemented by every upstream adapter and by the cache in front of them.
// Failures unwrap to ErrUpstream unless stated otherwise.
type Provider interface {
	GetStations(ctx context.Context, query string, results int) ([]transit.Station, error)
	// GetStationByRilIdentifier returns ErrNotFound when no lookup strategy matches.
	GetStationByRilIdentifier(ctx context.Context, ril string) (transit.Station, error)
	// GetStationsByFuzzyRilIdentifier searches by prefix and falls back to the exact lookup.
	GetStationsByFuzzyRilIdentifier(ctx context.Context, ril string) ([]transit.Station, error)
	GetDepartures(ctx context.Context, q DepartureQuery) ([]transit.Departure, error)
	// GetNearbyStations may fail with ErrNotSupported.
	GetNearbyStations(ctx context.Context, lat, lon float64, results int) ([]transit.NearbyStation, error)
	FetchTrip(ctx context.Context, tripID, lineName string) (transit.Trip, error)
	FetchRawTrip(ctx context.Context, tripID, lineName string) (json.RawMessage, error)
}
