package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"transit-reconciler/internal/transit"
)

func (s *Store) UpsertOperator(ctx context.Context, hafasID, name string) (transit.Operator, error) {
	op := transit.Operator{HafasID: hafasID, Name: name}
	q := `INSERT INTO hafas_operators (hafas_id, name) VALUES ($1, $2)
ON CONFLICT (hafas_id) DO UPDATE SET name = excluded.name
RETURNING id`
	if err := s.db.QueryRowContext(ctx, q, hafasID, name).Scan(&op.ID); err != nil {
		return transit.Operator{}, fmt.Errorf("upsert operator %s: %w", hafasID, err)
	}
	return op, nil
}

// InsertPolyline stores geometry once per hash and returns the row id.
func (s *Store) InsertPolyline(ctx context.Context, hash, payload, source string, parentID *int64) (int64, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO poly_lines (hash, polyline, source, parent_id) VALUES ($1, $2, $3, $4) ON CONFLICT (hash) DO NOTHING`,
		hash, payload, source, nullInt64(parentID))
	if err != nil {
		return 0, fmt.Errorf("insert polyline: %w", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM poly_lines WHERE hash = $1`, hash).Scan(&id); err != nil {
		return 0, fmt.Errorf("query polyline: %w", err)
	}
	return id, nil
}

func (s *Store) PolylineByID(ctx context.Context, id int64) (string, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT polyline FROM poly_lines WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query polyline: %w", err)
	}
	return payload, nil
}

// UpsertTrip writes t keyed on trip_id, last writer wins. A nil polyline
// keeps the stored one. It sets t.ID.
func (s *Store) UpsertTrip(ctx context.Context, t *transit.Trip) error {
	var delay sql.NullInt64
	if t.Delay != nil {
		delay = sql.NullInt64{Int64: int64(*t.Delay), Valid: true}
	}
	q := `INSERT INTO hafas_trips (trip_id, category, number, linename, journey_number, operator_id,
  origin_id, destination_id, polyline_id, departure, arrival, delay, source)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (trip_id) DO UPDATE SET
  category = excluded.category,
  number = excluded.number,
  linename = excluded.linename,
  journey_number = excluded.journey_number,
  operator_id = excluded.operator_id,
  origin_id = excluded.origin_id,
  destination_id = excluded.destination_id,
  polyline_id = COALESCE(excluded.polyline_id, hafas_trips.polyline_id),
  departure = excluded.departure,
  arrival = excluded.arrival,
  delay = excluded.delay,
  source = excluded.source
RETURNING id`
	err := s.db.QueryRowContext(ctx, q,
		t.TripID, string(t.Category), t.Number, t.LineName, nullInt64(t.JourneyNumber), nullInt64(t.OperatorID),
		t.OriginID, t.DestinationID, nullInt64(t.PolylineID), nullTime(t.Departure), nullTime(t.Arrival), delay, string(t.Source),
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("upsert trip %s: %w", t.TripID, err)
	}
	return nil
}

func (s *Store) TripByTripID(ctx context.Context, tripID string) (transit.Trip, error) {
	q := `SELECT id, trip_id, category, number, linename, journey_number, operator_id, origin_id,
  destination_id, polyline_id, departure, arrival, delay, source
FROM hafas_trips WHERE trip_id = $1`
	var (
		t                           transit.Trip
		category, source            string
		journey, operator, polyline sql.NullInt64
		departure, arrival          sql.NullTime
		delay                       sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, q, tripID).Scan(&t.ID, &t.TripID, &category, &t.Number, &t.LineName,
		&journey, &operator, &t.OriginID, &t.DestinationID, &polyline, &departure, &arrival, &delay, &source)
	if errors.Is(err, sql.ErrNoRows) {
		return transit.Trip{}, ErrNotFound
	}
	if err != nil {
		return transit.Trip{}, fmt.Errorf("query trip %s: %w", tripID, err)
	}
	t.Category = transit.HafasTravelType(category)
	t.Source = transit.TripSource(source)
	t.JourneyNumber = int64Ptr(journey)
	t.OperatorID = int64Ptr(operator)
	t.PolylineID = int64Ptr(polyline)
	t.Departure = timePtr(departure)
	t.Arrival = timePtr(arrival)
	if delay.Valid {
		d := int(delay.Int64)
		t.Delay = &d
	}
	return t, nil
}

// StopoverWrite carries one stopover upsert. Nil pointers and empty platforms
// leave the stored values untouched.
type StopoverWrite struct {
	TripID           string
	StationID        int64
	ArrivalPlanned   time.Time
	DeparturePlanned time.Time

	ArrivalReal   *time.Time
	DepartureReal *time.Time

	ArrivalPlatformPlanned   string
	ArrivalPlatformReal      string
	DeparturePlatformPlanned string
	DeparturePlatformReal    string

	Cancelled *bool
}

// UpsertStopover writes w keyed on trip, station and both planned times.
func (s *Store) UpsertStopover(ctx context.Context, w StopoverWrite) error {
	q := `INSERT INTO train_stopovers (trip_id, train_station_id, arrival_planned, departure_planned,
  arrival_real, departure_real, arrival_platform_planned, arrival_platform_real,
  departure_platform_planned, departure_platform_real, cancelled)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (trip_id, train_station_id, arrival_planned, departure_planned) DO UPDATE SET
  arrival_real = COALESCE(excluded.arrival_real, train_stopovers.arrival_real),
  departure_real = COALESCE(excluded.departure_real, train_stopovers.departure_real),
  arrival_platform_planned = COALESCE(excluded.arrival_platform_planned, train_stopovers.arrival_platform_planned),
  arrival_platform_real = COALESCE(excluded.arrival_platform_real, train_stopovers.arrival_platform_real),
  departure_platform_planned = COALESCE(excluded.departure_platform_planned, train_stopovers.departure_platform_planned),
  departure_platform_real = COALESCE(excluded.departure_platform_real, train_stopovers.departure_platform_real),
  cancelled = COALESCE(excluded.cancelled, train_stopovers.cancelled)`
	_, err := s.db.ExecContext(ctx, q,
		w.TripID, w.StationID, w.ArrivalPlanned.UTC(), w.DeparturePlanned.UTC(),
		nullTime(w.ArrivalReal), nullTime(w.DepartureReal),
		nullString(w.ArrivalPlatformPlanned), nullString(w.ArrivalPlatformReal),
		nullString(w.DeparturePlatformPlanned), nullString(w.DeparturePlatformReal),
		nullBool(w.Cancelled),
	)
	if err != nil {
		return fmt.Errorf("upsert stopover %s/%d: %w", w.TripID, w.StationID, err)
	}
	return nil
}

const stopoverColumns = `id, trip_id, train_station_id, arrival_planned, arrival_real, arrival_platform_planned,
  arrival_platform_real, departure_planned, departure_real, departure_platform_planned,
  departure_platform_real, cancelled`

func scanStopover(r rowScanner) (transit.Stopover, error) {
	var (
		so                          transit.Stopover
		arrPlanned, depPlanned      time.Time
		arrReal, depReal            sql.NullTime
		arrPlatPlanned, arrPlatReal sql.NullString
		depPlatPlanned, depPlatReal sql.NullString
		cancelled                   sql.NullBool
	)
	if err := r.Scan(&so.ID, &so.TripID, &so.StationID, &arrPlanned, &arrReal, &arrPlatPlanned, &arrPlatReal,
		&depPlanned, &depReal, &depPlatPlanned, &depPlatReal, &cancelled); err != nil {
		return transit.Stopover{}, err
	}
	so.ArrivalPlanned = arrPlanned.UTC()
	so.DeparturePlanned = depPlanned.UTC()
	so.ArrivalReal = timePtr(arrReal)
	so.DepartureReal = timePtr(depReal)
	so.ArrivalPlatformPlanned = arrPlatPlanned.String
	so.ArrivalPlatformReal = arrPlatReal.String
	so.DeparturePlatformPlanned = depPlatPlanned.String
	so.DeparturePlatformReal = depPlatReal.String
	so.Cancelled = cancelled.Valid && cancelled.Bool
	return so, nil
}

// StopoversByTrip returns the stopovers of tripID in schedule order.
func (s *Store) StopoversByTrip(ctx context.Context, tripID string) ([]transit.Stopover, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stopoverColumns+` FROM train_stopovers WHERE trip_id = $1 ORDER BY departure_planned, arrival_planned, id`, tripID)
	if err != nil {
		return nil, fmt.Errorf("query stopovers: %w", err)
	}
	defer rows.Close()
	var out []transit.Stopover
	for rows.Next() {
		so, err := scanStopover(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, so)
	}
	return out, rows.Err()
}

func (s *Store) StopoverByID(ctx context.Context, id int64) (transit.Stopover, error) {
	so, err := scanStopover(s.db.QueryRowContext(ctx, `SELECT `+stopoverColumns+` FROM train_stopovers WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return transit.Stopover{}, ErrNotFound
	}
	if err != nil {
		return transit.Stopover{}, fmt.Errorf("query stopover %d: %w", id, err)
	}
	return so, nil
}

func (s *Store) SetStopoverDepartureReal(ctx context.Context, id int64, real time.Time) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE train_stopovers SET departure_real = $2 WHERE id = $1`, id, real.UTC()); err != nil {
		return fmt.Errorf("set departure real %d: %w", id, err)
	}
	return nil
}
