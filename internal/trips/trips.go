// Package trips turns provider journey payloads into persisted trips with
// ordered stopovers. Both provider variants hand it a RawTrip.
package trips

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"transit-reconciler/internal/db"
	"transit-reconciler/internal/polyline"
	"transit-reconciler/internal/transit"
)

// RawStopover is one stop of an upstream journey with its station already resolved.
// Real times must only be set when the provider reported a delay signal for them.
type RawStopover struct {
	Station transit.Station

	PlannedArrival   *time.Time
	PlannedDeparture *time.Time
	RealArrival      *time.Time
	RealDeparture    *time.Time

	ArrivalPlatformPlanned   string
	ArrivalPlatformReal      string
	DeparturePlatformPlanned string
	DeparturePlatformReal    string

	// nil means the payload carried no cancellation signal
	Cancelled *bool
}

type RawOperator struct {
	ID   string
	Name string
}

type RawTrip struct {
	TripID        string
	Category      transit.HafasTravelType
	Number        string
	LineName      string
	JourneyNumber *int64
	Operator      *RawOperator
	Origin        transit.Station
	Destination   transit.Station

	PlannedDeparture *time.Time
	PlannedArrival   *time.Time
	Delay            *int

	Source    transit.TripSource
	Stopovers []RawStopover

	// Geometry is annotated with the stopovers before it is stored.
	Geometry *polyline.FeatureCollection
	// RawGeometry is stored verbatim when Geometry is nil.
	RawGeometry json.RawMessage
}

type Store interface {
	polyline.Store
	UpsertOperator(ctx context.Context, hafasID, name string) (transit.Operator, error)
	UpsertTrip(ctx context.Context, t *transit.Trip) error
	UpsertStopover(ctx context.Context, w db.StopoverWrite) error
	StopoversByTrip(ctx context.Context, tripID string) ([]transit.Stopover, error)
}

type Normalizer struct {
	store Store
}

func NewNormalizer(store Store) *Normalizer {
	return &Normalizer{store: store}
}

// Persist upserts the polyline, operator, trip and stopovers of raw and returns
// the stored trip with its stopovers reloaded.
func (n *Normalizer) Persist(ctx context.Context, raw RawTrip) (transit.Trip, error) {
	trip := transit.Trip{
		TripID:        raw.TripID,
		Category:      raw.Category,
		Number:        raw.Number,
		LineName:      raw.LineName,
		JourneyNumber: raw.JourneyNumber,
		OriginID:      raw.Origin.ID,
		DestinationID: raw.Destination.ID,
		Departure:     raw.PlannedDeparture,
		Arrival:       raw.PlannedArrival,
		Delay:         raw.Delay,
		Source:        raw.Source,
	}
	if trip.Category == "" {
		trip.Category = transit.Regional
	}

	polylineID, err := n.savePolyline(ctx, raw)
	if err != nil {
		return transit.Trip{}, err
	}
	trip.PolylineID = polylineID

	if raw.Operator != nil && raw.Operator.ID != "" {
		op, err := n.store.UpsertOperator(ctx, raw.Operator.ID, raw.Operator.Name)
		if err != nil {
			return transit.Trip{}, err
		}
		trip.OperatorID = &op.ID
	}

	if err := n.store.UpsertTrip(ctx, &trip); err != nil {
		return transit.Trip{}, err
	}

	for _, rs := range raw.Stopovers {
		w, ok := Stopover(raw.TripID, rs)
		if !ok {
			log.Printf("trip %s: skipping stop %d without planned times", raw.TripID, rs.Station.IBNR)
			continue
		}
		if err := n.store.UpsertStopover(ctx, w); err != nil {
			if db.IsUniqueViolation(err) {
				log.Printf("trip %s: concurrent stopover write at station %d ignored", raw.TripID, rs.Station.IBNR)
				continue
			}
			return transit.Trip{}, err
		}
	}

	trip.Stopovers, err = n.store.StopoversByTrip(ctx, raw.TripID)
	if err != nil {
		return transit.Trip{}, err
	}
	return trip, nil
}

func (n *Normalizer) savePolyline(ctx context.Context, raw RawTrip) (*int64, error) {
	var (
		id  int64
		err error
	)
	switch {
	case raw.Geometry != nil:
		stops := make([]transit.Station, 0, len(raw.Stopovers))
		for _, s := range raw.Stopovers {
			stops = append(stops, s.Station)
		}
		polyline.MatchStops(raw.Geometry, stops)
		id, err = polyline.Save(ctx, n.store, raw.Geometry, string(raw.Source))
	case len(raw.RawGeometry) > 0 && string(raw.RawGeometry) != "null":
		id, err = polyline.SaveRaw(ctx, n.store, raw.RawGeometry, string(raw.Source))
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("trip %s polyline: %w", raw.TripID, err)
	}
	return &id, nil
}

// Stopover applies the planned-time fallback: a missing planned arrival or
// departure takes the value of the other, and the matching real time follows
// the same rule. ok is false when neither planned time is known.
func Stopover(tripID string, r RawStopover) (w db.StopoverWrite, ok bool) {
	arr, dep := r.PlannedArrival, r.PlannedDeparture
	arrReal, depReal := r.RealArrival, r.RealDeparture
	switch {
	case arr == nil && dep == nil:
		return db.StopoverWrite{}, false
	case arr == nil:
		arr = dep
		if arrReal == nil {
			arrReal = depReal
		}
	case dep == nil:
		dep = arr
		if depReal == nil {
			depReal = arrReal
		}
	}
	return db.StopoverWrite{
		TripID:                   tripID,
		StationID:                r.Station.ID,
		ArrivalPlanned:           *arr,
		DeparturePlanned:         *dep,
		ArrivalReal:              arrReal,
		DepartureReal:            depReal,
		ArrivalPlatformPlanned:   r.ArrivalPlatformPlanned,
		ArrivalPlatformReal:      r.ArrivalPlatformReal,
		DeparturePlatformPlanned: r.DeparturePlatformPlanned,
		DeparturePlatformReal:    r.DeparturePlatformReal,
		Cancelled:                r.Cancelled,
	}, true
}
