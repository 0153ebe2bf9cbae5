package refresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"transit-reconciler/internal/db"
	"transit-reconciler/internal/provider"
)

type tripPayload struct {
	ID        string            `json:"id"`
	Stopovers []stopoverPayload `json:"stopovers"`
}

type stopoverPayload struct {
	Stop struct {
		ID provider.LooseString `json:"id"`
	} `json:"stop"`
	Arrival          *string `json:"arrival"`
	PlannedArrival   *string `json:"plannedArrival"`
	ArrivalDelay     *int    `json:"arrivalDelay"`
	Departure        *string `json:"departure"`
	PlannedDeparture *string `json:"plannedDeparture"`
	DepartureDelay   *int    `json:"departureDelay"`
	Cancelled        *bool   `json:"cancelled"`
}

func (p stopoverPayload) realtime() bool {
	return p.ArrivalDelay != nil || p.DepartureDelay != nil || p.Cancelled != nil
}

func decodeTripPayload(raw json.RawMessage) (*tripPayload, error) {
	var env struct {
		Trip *tripPayload `json:"trip"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if env.Trip != nil {
		return env.Trip, nil
	}
	var t tripPayload
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func parseTime(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	return provider.ParseTime(*s, time.UTC)
}

// RefreshStopovers writes the real-time fields of a raw structured trip
// payload onto the stored stopovers and returns how many stops carried any.
// A real time is written only with its delay. A stop with real-time data but
// no cancellation flag is stored as not cancelled.
func (s *Service) RefreshStopovers(ctx context.Context, raw json.RawMessage) (int, error) {
	t, err := decodeTripPayload(raw)
	if err != nil {
		return 0, fmt.Errorf("decode trip: %w", err)
	}
	if t.ID == "" {
		return 0, errors.New("trip payload without id")
	}
	updated := 0
	for _, so := range t.Stopovers {
		if !so.realtime() {
			continue
		}
		w, ok, err := s.stopoverWrite(ctx, t.ID, so)
		if err != nil {
			return updated, err
		}
		if !ok {
			continue
		}
		if err := s.store.UpsertStopover(ctx, w); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

func (s *Service) stopoverWrite(ctx context.Context, tripID string, so stopoverPayload) (db.StopoverWrite, bool, error) {
	ibnr := so.Stop.ID.Int64()
	if ibnr == 0 {
		return db.StopoverWrite{}, false, nil
	}
	station, err := s.store.StationByIBNR(ctx, ibnr)
	if errors.Is(err, db.ErrNotFound) {
		log.Printf("refresh trip=%s stop=%d unknown, skipped", tripID, ibnr)
		return db.StopoverWrite{}, false, nil
	}
	if err != nil {
		return db.StopoverWrite{}, false, err
	}

	arrPlanned, err := parseTime(so.PlannedArrival)
	if err != nil {
		return db.StopoverWrite{}, false, err
	}
	depPlanned, err := parseTime(so.PlannedDeparture)
	if err != nil {
		return db.StopoverWrite{}, false, err
	}
	switch {
	case arrPlanned == nil && depPlanned == nil:
		return db.StopoverWrite{}, false, nil
	case arrPlanned == nil:
		arrPlanned = depPlanned
	case depPlanned == nil:
		depPlanned = arrPlanned
	}

	cancelled := so.Cancelled != nil && *so.Cancelled
	w := db.StopoverWrite{
		TripID:           tripID,
		StationID:        station.ID,
		ArrivalPlanned:   *arrPlanned,
		DeparturePlanned: *depPlanned,
		Cancelled:        &cancelled,
	}
	if so.ArrivalDelay != nil {
		if w.ArrivalReal, err = parseTime(so.Arrival); err != nil {
			return db.StopoverWrite{}, false, err
		}
	}
	if so.DepartureDelay != nil {
		if w.DepartureReal, err = parseTime(so.Departure); err != nil {
			return db.StopoverWrite{}, false, err
		}
	}
	return w, true, nil
}

// RefreshTrip fetches the raw payload of tripID and applies RefreshStopovers.
func (s *Service) RefreshTrip(ctx context.Context, tripID, lineName string) (int, error) {
	raw, err := s.provider.FetchRawTrip(ctx, tripID, lineName)
	if err != nil {
		return 0, fmt.Errorf("raw trip %s: %w", tripID, err)
	}
	return s.RefreshStopovers(ctx, raw)
}
