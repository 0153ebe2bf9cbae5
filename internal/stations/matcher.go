// Package stations resolves raw upstream stops to canonical stations.
package stations

import (
	"context"
	"fmt"

	"transit-reconciler/internal/db"
	"transit-reconciler/internal/transit"
)

type Store interface {
	UpsertStations(ctx context.Context, rows []db.StationRow) error
	StationsByIBNR(ctx context.Context, ibnrs []int64) (map[int64]transit.Station, error)
	UpsertStation(ctx context.Context, r db.StationRow) (transit.Station, error)
}

// Raw is a stop as a provider reports it. Nil coordinates fall back to the
// ones encoded in LocationID, then to 0/0.
type Raw struct {
	IBNR          int64
	Name          string
	Latitude      *float64
	Longitude     *float64
	RilIdentifier string
	LocationID    string
}

func (r Raw) coordinates() (lat, lon float64) {
	if r.Latitude != nil && r.Longitude != nil {
		return *r.Latitude, *r.Longitude
	}
	if lat, lon, ok := ParseCoordinates(r.LocationID); ok {
		return lat, lon
	}
	return 0, 0
}

type Matcher struct {
	store  Store
	source string
}

// NewMatcher returns a Matcher tagging newly created stations with source.
func NewMatcher(store Store, source string) *Matcher {
	return &Matcher{store: store, source: source}
}

// Upsert writes raws in one batch and returns the stored stations ordered by
// first appearance in raws. Records without an IBNR are dropped and an empty
// batch issues no query.
func (m *Matcher) Upsert(ctx context.Context, raws []Raw) ([]transit.Station, error) {
	order := make([]int64, 0, len(raws))
	rows := make([]db.StationRow, 0, len(raws))
	seen := make(map[int64]struct{}, len(raws))
	for _, r := range raws {
		if r.IBNR == 0 {
			continue
		}
		if _, dup := seen[r.IBNR]; dup {
			continue
		}
		seen[r.IBNR] = struct{}{}
		lat, lon := r.coordinates()
		order = append(order, r.IBNR)
		rows = append(rows, db.StationRow{IBNR: r.IBNR, Name: r.Name, Latitude: lat, Longitude: lon, Source: m.source})
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if err := m.store.UpsertStations(ctx, rows); err != nil {
		return nil, err
	}
	byIBNR, err := m.store.StationsByIBNR(ctx, order)
	if err != nil {
		return nil, err
	}
	out := make([]transit.Station, 0, len(order))
	for _, ibnr := range order {
		st, ok := byIBNR[ibnr]
		if !ok {
			return nil, fmt.Errorf("station %d missing after upsert", ibnr)
		}
		out = append(out, st)
	}
	return out, nil
}

// UpsertStop resolves a single stop, also recording its short identifier.
func (m *Matcher) UpsertStop(ctx context.Context, r Raw) (transit.Station, error) {
	if r.IBNR == 0 {
		return transit.Station{}, fmt.Errorf("stop %q has no external id", r.Name)
	}
	lat, lon := r.coordinates()
	return m.store.UpsertStation(ctx, db.StationRow{
		IBNR:          r.IBNR,
		Name:          r.Name,
		Latitude:      lat,
		Longitude:     lon,
		RilIdentifier: r.RilIdentifier,
		Source:        m.source,
	})
}

// Index keys stations by IBNR.
func Index(stations []transit.Station) map[int64]transit.Station {
	out := make(map[int64]transit.Station, len(stations))
	for _, st := range stations {
		out[st.IBNR] = st
	}
	return out
}
