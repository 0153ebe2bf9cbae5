package hafas

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"time"

	"transit-reconciler/internal/provider"
	"transit-reconciler/internal/stations"
	"transit-reconciler/internal/transit"
	"transit-reconciler/internal/trips"
)

// window is one departure board request as sent upstream.
type window struct {
	station  transit.Station
	when     time.Time
	duration int
	filter   transit.TravelType
	// skipShift sends when as is instead of reinterpreting its wall clock in the reference zone.
	skipShift bool
}

func (c *Client) fetchDepartures(ctx context.Context, w window) ([]departure, error) {
	at := w.when
	if !w.skipShift {
		at = shiftZone(w.when, c.zone)
	}
	q := url.Values{
		"when":     {at.Format(time.RFC3339)},
		"duration": {strconv.Itoa(w.duration)},
	}
	for _, p := range transit.HafasTravelTypes {
		q.Set(string(p), strconv.FormatBool(p.Enabled(w.filter)))
	}
	path := "/stops/" + strconv.FormatInt(w.station.IBNR, 10) + "/departures"
	status, body, err := c.get(ctx, provider.FamilyDepartures, path, q)
	if err != nil {
		return nil, c.upstream("departures", err)
	}
	if !provider.OK(status) {
		log.Printf("hafas departures not ok station=%d status=%d body=%.200s", w.station.IBNR, status, body)
		return nil, c.upstream("departures", fmt.Errorf("status %d", status))
	}
	data, err := decodeDepartures(body)
	if err != nil {
		return nil, c.upstream("departures", fmt.Errorf("decode departures: %w", err))
	}
	return data, nil
}

// shiftZone keeps the wall clock of t and moves it into loc.
func shiftZone(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

func (c *Client) GetDepartures(ctx context.Context, q provider.DepartureQuery) ([]transit.Departure, error) {
	q = q.WithDefaults()
	st := q.Station

	w := window{station: st, when: q.When, duration: q.Duration, filter: q.Type}
	if st.TimeOffset != nil && !q.Localtime {
		w.when = q.When.Add(-time.Duration(*st.TimeOffset) * time.Hour)
	}
	w.skipShift = !st.ShiftTime && !q.Localtime

	data, err := c.fetchDepartures(ctx, w)
	if err != nil {
		return nil, err
	}
	if needsProbe(st, q.Localtime) {
		if data, err = c.detectOffset(ctx, q, data); err != nil {
			return nil, err
		}
	}
	return c.mapDepartures(ctx, data)
}

func (c *Client) mapDepartures(ctx context.Context, data []departure) ([]transit.Departure, error) {
	raws := make([]stations.Raw, 0, len(data))
	for _, d := range data {
		raws = append(raws, d.Stop.raw())
	}
	found, err := c.matcher.Upsert(ctx, raws)
	if err != nil {
		return nil, err
	}
	byIBNR := stations.Index(found)

	out := make([]transit.Departure, 0, len(data))
	for _, d := range data {
		when, err := provider.ParseTime(str(d.When), c.zone)
		if err != nil {
			return nil, c.upstream("departures", err)
		}
		planned, err := provider.ParseTime(str(d.PlannedWhen), c.zone)
		if err != nil {
			return nil, c.upstream("departures", err)
		}
		if planned == nil {
			if when == nil {
				log.Printf("hafas departure trip=%s without any time skipped", d.TripID)
				continue
			}
			planned = when
		}
		st, ok := byIBNR[d.Stop.ID.Int64()]
		if !ok {
			st = transit.Station{Name: d.Stop.Name}
		}
		product := transit.HafasTravelType(d.Line.Product)
		c.associations.Remember(d.TripID, trips.Association{Category: product, LineName: str(d.Line.Name)})
		out = append(out, transit.Departure{
			TripID:          d.TripID,
			Station:         st,
			When:            when,
			PlannedWhen:     *planned,
			Delay:           d.Delay,
			Platform:        str(d.Platform),
			PlannedPlatform: str(d.PlannedPlatform),
			Direction:       d.Direction,
			Line: transit.Line{
				ID:      str(d.Line.ID),
				Name:    str(d.Line.Name),
				FahrtNr: d.Line.fahrtNr(),
				Product: product,
			},
			Cancelled: d.Cancelled,
		})
	}
	return out, nil
}
