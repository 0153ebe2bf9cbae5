package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"transit-reconciler/internal/transit"
)

// StationRow is the provider-sourced part of a station that upserts may refresh.
type StationRow struct {
	IBNR          int64
	Name          string
	Latitude      float64
	Longitude     float64
	RilIdentifier string // written only when non-empty
	Source        string // written on insert only
}

const stationColumns = `id, ibnr, ril_identifier, name, latitude, longitude, time_offset, shift_time, source, wikidata_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStation(r rowScanner) (transit.Station, error) {
	var (
		st     transit.Station
		ibnr   sql.NullInt64
		ril    sql.NullString
		offset sql.NullInt64
		source sql.NullString
		wiki   sql.NullString
	)
	if err := r.Scan(&st.ID, &ibnr, &ril, &st.Name, &st.Latitude, &st.Longitude, &offset, &st.ShiftTime, &source, &wiki); err != nil {
		return transit.Station{}, err
	}
	st.IBNR = ibnr.Int64
	st.RilIdentifier = ril.String
	if offset.Valid {
		o := int(offset.Int64)
		st.TimeOffset = &o
	}
	st.Source = source.String
	st.WikidataID = wiki.String
	return st, nil
}

// UpsertStations writes rows in one statement keyed on ibnr, refreshing
// name and coordinates only. Rows must carry distinct non-zero IBNRs.
func (s *Store) UpsertStations(ctx context.Context, rows []StationRow) error {
	if len(rows) == 0 {
		return nil
	}
	values := make([]string, 0, len(rows))
	args := make([]any, 0, len(rows)*5)
	for i, r := range rows {
		values = append(values, "("+placeholders(i*5+1, 5)+")")
		args = append(args, r.IBNR, r.Name, r.Latitude, r.Longitude, nullString(r.Source))
	}
	q := `INSERT INTO train_stations (ibnr, name, latitude, longitude, source) VALUES ` +
		strings.Join(values, ", ") +
		` ON CONFLICT (ibnr) DO UPDATE SET name = excluded.name, latitude = excluded.latitude, longitude = excluded.longitude`
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("upsert stations: %w", err)
	}
	return nil
}

// StationsByIBNR returns the stored stations for ibnrs keyed by IBNR.
func (s *Store) StationsByIBNR(ctx context.Context, ibnrs []int64) (map[int64]transit.Station, error) {
	out := make(map[int64]transit.Station, len(ibnrs))
	if len(ibnrs) == 0 {
		return out, nil
	}
	args := make([]any, len(ibnrs))
	for i, v := range ibnrs {
		args[i] = v
	}
	q := `SELECT ` + stationColumns + ` FROM train_stations WHERE ibnr IN (` + placeholders(1, len(ibnrs)) + `)`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		out[st.IBNR] = st
	}
	return out, rows.Err()
}

// UpsertStation writes one station keyed on ibnr and returns the stored row.
// A non-empty RilIdentifier is written, an empty one keeps the stored value.
func (s *Store) UpsertStation(ctx context.Context, r StationRow) (transit.Station, error) {
	q := `INSERT INTO train_stations (ibnr, name, latitude, longitude, ril_identifier, source)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (ibnr) DO UPDATE SET
  name = excluded.name,
  latitude = excluded.latitude,
  longitude = excluded.longitude,
  ril_identifier = COALESCE(excluded.ril_identifier, train_stations.ril_identifier)
RETURNING ` + stationColumns
	st, err := scanStation(s.db.QueryRowContext(ctx, q, r.IBNR, r.Name, r.Latitude, r.Longitude, nullString(r.RilIdentifier), nullString(r.Source)))
	if err != nil {
		return transit.Station{}, fmt.Errorf("upsert station %d: %w", r.IBNR, err)
	}
	return st, nil
}

// CreateStation inserts a station that may lack an IBNR.
func (s *Store) CreateStation(ctx context.Context, st transit.Station) (transit.Station, error) {
	var ibnr sql.NullInt64
	if st.IBNR != 0 {
		ibnr = sql.NullInt64{Int64: st.IBNR, Valid: true}
	}
	q := `INSERT INTO train_stations (ibnr, ril_identifier, name, latitude, longitude, source, wikidata_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + stationColumns
	created, err := scanStation(s.db.QueryRowContext(ctx, q, ibnr, nullString(st.RilIdentifier), st.Name, st.Latitude, st.Longitude, nullString(st.Source), nullString(st.WikidataID)))
	if err != nil {
		return transit.Station{}, fmt.Errorf("create station: %w", err)
	}
	return created, nil
}

func (s *Store) StationByID(ctx context.Context, id int64) (transit.Station, error) {
	return s.stationWhere(ctx, `id = $1`, id)
}

func (s *Store) StationByIBNR(ctx context.Context, ibnr int64) (transit.Station, error) {
	return s.stationWhere(ctx, `ibnr = $1`, ibnr)
}

func (s *Store) StationByRil(ctx context.Context, ril string) (transit.Station, error) {
	return s.stationWhere(ctx, `ril_identifier = $1`, ril)
}

func (s *Store) stationWhere(ctx context.Context, cond string, arg any) (transit.Station, error) {
	q := `SELECT ` + stationColumns + ` FROM train_stations WHERE ` + cond + ` ORDER BY id LIMIT 1`
	st, err := scanStation(s.db.QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return transit.Station{}, ErrNotFound
	}
	if err != nil {
		return transit.Station{}, fmt.Errorf("query station: %w", err)
	}
	return st, nil
}

// StationsByRilPrefix returns stations whose short identifier starts with prefix.
func (s *Store) StationsByRilPrefix(ctx context.Context, prefix string) ([]transit.Station, error) {
	q := `SELECT ` + stationColumns + ` FROM train_stations WHERE ril_identifier LIKE $1 ORDER BY ril_identifier`
	rows, err := s.db.QueryContext(ctx, q, stripWildcards(prefix)+"%")
	if err != nil {
		return nil, fmt.Errorf("query stations by ril: %w", err)
	}
	defer rows.Close()
	var out []transit.Station
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) IBNRExists(ctx context.Context, ibnr int64) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM train_stations WHERE ibnr = $1`, ibnr).Scan(&n); err != nil {
		return false, fmt.Errorf("count stations: %w", err)
	}
	return n > 0, nil
}

// SetStationEnrichment links a knowledge-base id and fills ril only when unset.
func (s *Store) SetStationEnrichment(ctx context.Context, id int64, wikidataID, ril string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE train_stations SET wikidata_id = $2, ril_identifier = COALESCE(ril_identifier, $3) WHERE id = $1`,
		id, wikidataID, nullString(ril))
	if err != nil {
		return fmt.Errorf("enrich station %d: %w", id, err)
	}
	return nil
}

func (s *Store) SetStationTimeOffset(ctx context.Context, id int64, hours int) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE train_stations SET time_offset = $2 WHERE id = $1`, id, hours); err != nil {
		return fmt.Errorf("set time offset %d: %w", id, err)
	}
	return nil
}

func (s *Store) SetStationShiftTime(ctx context.Context, id int64, shift bool) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE train_stations SET shift_time = $2 WHERE id = $1`, id, shift); err != nil {
		return fmt.Errorf("set shift time %d: %w", id, err)
	}
	return nil
}

// stripWildcards drops LIKE metacharacters so prefixes match literally.
func stripWildcards(s string) string {
	return strings.NewReplacer("%", "", "_", "").Replace(s)
}
