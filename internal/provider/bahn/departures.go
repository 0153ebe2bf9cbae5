package bahn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"

	"transit-reconciler/internal/db"
	"transit-reconciler/internal/provider"
	"transit-reconciler/internal/transit"
	"transit-reconciler/internal/trips"
)

func (c *Client) GetDepartures(ctx context.Context, q provider.DepartureQuery) ([]transit.Departure, error) {
	when := q.When.In(c.zone)
	params := url.Values{
		"ortExtId": {strconv.FormatInt(q.Station.IBNR, 10)},
		"datum":    {when.Format("2006-01-02")},
		"zeit":     {when.Format("15:04")},
	}
	for _, cat := range CategoriesFor(q.Type) {
		params.Add("verkehrsmittel[]", string(cat))
	}
	status, body, err := c.get(ctx, provider.FamilyDepartures, "/abfahrten", params)
	if err != nil {
		return nil, c.upstream("departures", err)
	}
	if !provider.OK(status) {
		log.Printf("bahn abfahrten not ok station=%d status=%d body=%.200s", q.Station.IBNR, status, body)
		return nil, c.upstream("departures", fmt.Errorf("status %d", status))
	}
	var board abfahrten
	if err := json.Unmarshal(body, &board); err != nil {
		return nil, c.upstream("departures", fmt.Errorf("decode abfahrten: %w", err))
	}

	resolved := map[int64]transit.Station{q.Station.IBNR: q.Station}
	out := make([]transit.Departure, 0, len(board.Entries))
	for _, e := range board.Entries {
		cat, ok := ParseCategory(e.Verkehrsmittel.ProduktGattung)
		if !ok {
			cat = Unknown
		}
		product := cat.Product()

		lineName := e.Verkehrsmittel.MittelText
		var number string
		if n, ok := trips.ExtractJourneyNumber(e.JourneyID); ok {
			number = strconv.FormatInt(n, 10)
			if lineName == "" {
				lineName = number
			}
		}
		c.associations.Remember(e.JourneyID, trips.Association{Category: product, LineName: lineName})

		planned, err := provider.ParseTime(e.Zeit, c.zone)
		if err != nil || planned == nil {
			log.Printf("bahn departure journey=%s: bad time %q", e.JourneyID, e.Zeit)
			continue
		}
		actual, err := provider.ParseTime(e.EzZeit, c.zone)
		if err != nil {
			actual = nil
		}
		var delay *int
		if actual != nil {
			d := int(actual.Sub(*planned).Seconds())
			delay = &d
		}
		platform := e.Gleis
		if e.EzGleis != nil {
			platform = *e.EzGleis
		}

		out = append(out, transit.Departure{
			TripID:          e.JourneyID,
			Station:         c.departureStation(ctx, e.BahnhofsID.Int64(), q.Station, resolved),
			When:            actual,
			PlannedWhen:     *planned,
			Delay:           delay,
			Platform:        platform,
			PlannedPlatform: e.Gleis,
			Direction:       e.Terminus,
			Line:            transit.Line{ID: lineName, Name: lineName, FahrtNr: number, Product: product},
		})
	}
	return out, nil
}

// departureStation resolves the stop an entry departs from, which differs from
// the queried one for grouped stations. Unknown stops are searched upstream,
// any failure falls back to the queried station.
func (c *Client) departureStation(ctx context.Context, ibnr int64, queried transit.Station, seen map[int64]transit.Station) transit.Station {
	if ibnr == 0 {
		return queried
	}
	if st, ok := seen[ibnr]; ok {
		return st
	}
	st, err := c.store.StationByIBNR(ctx, ibnr)
	if errors.Is(err, db.ErrNotFound) {
		var found []transit.Station
		found, err = c.GetStations(ctx, strconv.FormatInt(ibnr, 10), 1)
		if err == nil && len(found) == 0 {
			err = fmt.Errorf("station %d: %w", ibnr, provider.ErrNotFound)
		}
		if err == nil {
			st = found[0]
		}
	}
	if err != nil {
		log.Printf("bahn departure station %d: %v", ibnr, err)
		st = queried
	}
	seen[ibnr] = st
	return st
}
