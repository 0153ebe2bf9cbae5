// Package refresh backfills real departure times of stopovers whose planned
// departure passed without a real-time signal.
package refresh

import (
	"context"
	"fmt"
	"time"

	"transit-reconciler/internal/db"
	"transit-reconciler/internal/provider"
	"transit-reconciler/internal/transit"
)

type Result string

const (
	Updated   Result = "updated"
	Unchanged Result = "unchanged"
	Failed    Result = "failed"
)

type Store interface {
	StationByID(ctx context.Context, id int64) (transit.Station, error)
	StationByIBNR(ctx context.Context, ibnr int64) (transit.Station, error)
	StopoverByID(ctx context.Context, id int64) (transit.Stopover, error)
	SetStopoverDepartureReal(ctx context.Context, id int64, real time.Time) error
	UpsertStopover(ctx context.Context, w db.StopoverWrite) error
}

type Service struct {
	store    Store
	provider provider.Provider
}

func NewService(store Store, p provider.Provider) *Service {
	return &Service{store: store, provider: p}
}

// RefreshStopover queries the departure board of the stopover's station at its
// planned departure and stores the real time of the matching trip when it deviates.
func (s *Service) RefreshStopover(ctx context.Context, so transit.Stopover) (Result, error) {
	if so.DeparturePlanned.IsZero() {
		return Unchanged, nil
	}
	station, err := s.store.StationByID(ctx, so.StationID)
	if err != nil {
		return Failed, fmt.Errorf("load station %d: %w", so.StationID, err)
	}
	deps, err := s.provider.GetDepartures(ctx, provider.DepartureQuery{
		Station: station,
		When:    so.DeparturePlanned,
	})
	if err != nil {
		return Failed, fmt.Errorf("departures for stopover %d: %w", so.ID, err)
	}

	var match *transit.Departure
	for i := range deps {
		if deps[i].TripID == so.TripID {
			match = &deps[i]
			break
		}
	}
	if match == nil || match.When == nil || match.When.Equal(so.DeparturePlanned) {
		return Unchanged, nil
	}
	if err := s.store.SetStopoverDepartureReal(ctx, so.ID, *match.When); err != nil {
		return Failed, err
	}
	return Updated, nil
}

func (s *Service) RefreshStopoverByID(ctx context.Context, id int64) (Result, error) {
	so, err := s.store.StopoverByID(ctx, id)
	if err != nil {
		return Failed, fmt.Errorf("load stopover %d: %w", id, err)
	}
	return s.RefreshStopover(ctx, so)
}
