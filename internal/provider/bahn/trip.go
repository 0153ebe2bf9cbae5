package bahn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"time"

	"transit-reconciler/internal/polyline"
	"transit-reconciler/internal/provider"
	"transit-reconciler/internal/stations"
	"transit-reconciler/internal/transit"
	"transit-reconciler/internal/trips"
)

func (c *Client) fetchJourney(ctx context.Context, journeyID string, poly bool) ([]byte, error) {
	status, body, err := c.get(ctx, provider.FamilyTrips, "/fahrt", url.Values{
		"journeyId": {journeyID},
		"poly":      {strconv.FormatBool(poly)},
	})
	if err != nil {
		return nil, c.upstream("trips", err)
	}
	if !provider.OK(status) {
		log.Printf("bahn fahrt not ok journey=%s status=%d body=%.200s", journeyID, status, body)
		return nil, c.upstream("trips", fmt.Errorf("status %d", status))
	}
	return body, nil
}

func (c *Client) FetchRawTrip(ctx context.Context, tripID, _ string) (json.RawMessage, error) {
	body, err := c.fetchJourney(ctx, tripID, true)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (c *Client) FetchTrip(ctx context.Context, tripID, lineName string) (transit.Trip, error) {
	body, err := c.fetchJourney(ctx, tripID, true)
	if err != nil {
		return transit.Trip{}, err
	}
	if b := bytes.TrimSpace(body); len(b) == 0 || string(b) == "null" {
		return transit.Trip{}, c.upstream("trips", errors.New("empty journey"))
	}
	var f fahrt
	if err := json.Unmarshal(body, &f); err != nil {
		return transit.Trip{}, c.upstream("trips", fmt.Errorf("decode fahrt: %w", err))
	}
	if len(f.Halte) == 0 {
		return transit.Trip{}, c.upstream("trips", errors.New("journey without halts"))
	}
	raw, err := c.rawTrip(ctx, tripID, lineName, &f)
	if err != nil {
		return transit.Trip{}, err
	}
	return c.trips.Persist(ctx, raw)
}

// haltStations returns the station of every halt. Known stations are taken as
// stored, unknown ones are created from the coordinates encoded in the halt id.
func (c *Client) haltStations(ctx context.Context, halte []halt) (map[int64]transit.Station, error) {
	ibnrs := make([]int64, 0, len(halte))
	for _, h := range halte {
		ibnrs = append(ibnrs, h.ExtID.Int64())
	}
	known, err := c.store.StationsByIBNR(ctx, ibnrs)
	if err != nil {
		return nil, err
	}
	var missing []stations.Raw
	for _, h := range halte {
		if _, ok := known[h.ExtID.Int64()]; !ok {
			missing = append(missing, stations.Raw{IBNR: h.ExtID.Int64(), Name: h.Name, LocationID: h.ID})
		}
	}
	created, err := c.matcher.Upsert(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, st := range created {
		known[st.IBNR] = st
	}
	return known, nil
}

func (c *Client) rawTrip(ctx context.Context, tripID, hint string, f *fahrt) (trips.RawTrip, error) {
	byIBNR, err := c.haltStations(ctx, f.Halte)
	if err != nil {
		return trips.RawTrip{}, err
	}
	first, last := f.Halte[0], f.Halte[len(f.Halte)-1]
	origin, ok := byIBNR[first.ExtID.Int64()]
	if !ok {
		return trips.RawTrip{}, c.upstream("trips", fmt.Errorf("origin %q without external id", first.Name))
	}
	destination, ok := byIBNR[last.ExtID.Int64()]
	if !ok {
		return trips.RawTrip{}, c.upstream("trips", fmt.Errorf("destination %q without external id", last.Name))
	}

	assoc, _ := c.associations.Lookup(tripID)
	var stopCategory []transit.HafasTravelType
	for _, h := range f.Halte {
		if h.Kategorie == "" {
			continue
		}
		if cat, ok := ParseCategory(h.Kategorie); ok {
			stopCategory = append(stopCategory, cat.Product())
		}
		break
	}

	lineName := hint
	if assoc != nil && assoc.LineName != "" {
		lineName = assoc.LineName
	}

	number := first.Nummer.Int64()
	if number == 0 {
		number, _ = trips.ExtractJourneyNumber(tripID)
	}
	raw := trips.RawTrip{
		TripID:      tripID,
		Category:    trips.ResolveCategory(stopCategory, assoc),
		LineName:    lineName,
		Origin:      origin,
		Destination: destination,
		Source:      transit.SourceBahnWebAPI,
	}
	if number != 0 {
		raw.Number = strconv.FormatInt(number, 10)
		raw.JourneyNumber = &number
	}
	if raw.PlannedDeparture, err = provider.ParseTime(first.AbfahrtsZeitpunkt, c.zone); err != nil {
		return trips.RawTrip{}, c.upstream("trips", err)
	}
	if raw.PlannedArrival, err = provider.ParseTime(last.AnkunftsZeitpunkt, c.zone); err != nil {
		return trips.RawTrip{}, c.upstream("trips", err)
	}

	for _, h := range f.Halte {
		st, ok := byIBNR[h.ExtID.Int64()]
		if !ok {
			log.Printf("trip %s: halt %q without external id skipped", tripID, h.Name)
			continue
		}
		rs, err := c.rawStopover(st, h)
		if err != nil {
			return trips.RawTrip{}, err
		}
		raw.Stopovers = append(raw.Stopovers, rs)
	}
	if f.PolylineGroup != nil {
		raw.Geometry = geometry(f.PolylineGroup)
	}
	return raw, nil
}

// rawStopover uses one platform for both directions, the portal does not tell them apart.
func (c *Client) rawStopover(st transit.Station, h halt) (trips.RawStopover, error) {
	rs := trips.RawStopover{
		Station:                  st,
		ArrivalPlatformPlanned:   h.Gleis,
		DeparturePlatformPlanned: h.Gleis,
		ArrivalPlatformReal:      h.EzGleis,
		DeparturePlatformReal:    h.EzGleis,
	}
	for _, f := range []struct {
		dst **time.Time
		src string
	}{
		{&rs.PlannedArrival, h.AnkunftsZeitpunkt},
		{&rs.RealArrival, h.EzAnkunftsZeitpunkt},
		{&rs.PlannedDeparture, h.AbfahrtsZeitpunkt},
		{&rs.RealDeparture, h.EzAbfahrtsZeitpunkt},
	} {
		t, err := provider.ParseTime(f.src, c.zone)
		if err != nil {
			return rs, c.upstream("trips", err)
		}
		*f.dst = t
	}
	return rs, nil
}

func geometry(g *polylineGroup) *polyline.FeatureCollection {
	var points []polyline.Point
	for _, d := range g.PolylineDescriptions {
		for _, c := range d.Coordinates {
			points = append(points, polyline.Point{Lat: c.Lat, Lon: c.Lng})
		}
	}
	return polyline.FromPoints(points)
}
