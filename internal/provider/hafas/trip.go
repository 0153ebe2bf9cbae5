package hafas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"transit-reconciler/internal/messages"
	"transit-reconciler/internal/provider"
	"transit-reconciler/internal/stations"
	"transit-reconciler/internal/transit"
	"transit-reconciler/internal/trips"
)

func (c *Client) FetchRawTrip(ctx context.Context, tripID, lineName string) (json.RawMessage, error) {
	status, body, err := c.get(ctx, provider.FamilyTrips, "/trips/"+url.PathEscape(tripID), url.Values{
		"lineName":  {lineName},
		"polyline":  {"true"},
		"stopovers": {"true"},
	})
	switch {
	case err != nil:
		return nil, c.upstream("trips", err)
	case status == http.StatusBadGateway:
		log.Printf("hafas trip id=%s: bad gateway", tripID)
		return nil, provider.Upstream(c.msgs, "trips", messages.Hafas502, fmt.Errorf("status %d", status))
	case !provider.OK(status):
		log.Printf("hafas trip id=%s not ok status=%d body=%.200s", tripID, status, body)
		return nil, c.upstream("trips", fmt.Errorf("status %d", status))
	}
	return json.RawMessage(body), nil
}

func (c *Client) FetchTrip(ctx context.Context, tripID, lineName string) (transit.Trip, error) {
	body, err := c.FetchRawTrip(ctx, tripID, lineName)
	if err != nil {
		return transit.Trip{}, err
	}
	t, err := decodeTrip(body)
	if err != nil {
		return transit.Trip{}, c.upstream("trips", fmt.Errorf("decode trip: %w", err))
	}
	if t.Origin.ID == "" || t.Destination.ID == "" {
		return transit.Trip{}, c.upstream("trips", errors.New("trip payload without origin or destination"))
	}
	raw, err := c.rawTrip(ctx, tripID, lineName, t)
	if err != nil {
		return transit.Trip{}, err
	}
	return c.trips.Persist(ctx, raw)
}

func (c *Client) rawTrip(ctx context.Context, tripID, hint string, t *trip) (trips.RawTrip, error) {
	origin, err := c.matcher.UpsertStop(ctx, t.Origin.raw())
	if err != nil {
		return trips.RawTrip{}, err
	}
	destination, err := c.matcher.UpsertStop(ctx, t.Destination.raw())
	if err != nil {
		return trips.RawTrip{}, err
	}

	assoc, _ := c.associations.Lookup(tripID)
	fahrtNr := t.Line.fahrtNr()
	lineName := str(t.Line.Name)
	if t.Line.Name == nil {
		lineName = fahrtNr
	}
	if lineName == "" {
		lineName = hint
	}
	if lineName == "" && assoc != nil {
		lineName = assoc.LineName
	}

	raw := trips.RawTrip{
		TripID:        tripID,
		Category:      trips.ResolveCategory([]transit.HafasTravelType{transit.HafasTravelType(t.Line.Product)}, assoc),
		Number:        str(t.Line.ID),
		LineName:      lineName,
		JourneyNumber: journeyNumber(fahrtNr, tripID),
		Origin:        origin,
		Destination:   destination,
		Delay:         t.ArrivalDelay,
		Source:        transit.SourceHafas,
		RawGeometry:   t.Polyline,
	}
	if op := t.Line.Operator; op != nil && op.ID != "" {
		raw.Operator = &trips.RawOperator{ID: op.ID, Name: op.Name}
	}
	if raw.PlannedDeparture, err = provider.ParseTime(str(t.PlannedDeparture), c.zone); err != nil {
		return trips.RawTrip{}, c.upstream("trips", err)
	}
	if raw.PlannedArrival, err = provider.ParseTime(str(t.PlannedArrival), c.zone); err != nil {
		return trips.RawTrip{}, c.upstream("trips", err)
	}

	stops := make([]stations.Raw, 0, len(t.Stopovers))
	for _, so := range t.Stopovers {
		stops = append(stops, so.Stop.raw())
	}
	found, err := c.matcher.Upsert(ctx, stops)
	if err != nil {
		return trips.RawTrip{}, err
	}
	byIBNR := stations.Index(found)

	for _, so := range t.Stopovers {
		st, ok := byIBNR[so.Stop.ID.Int64()]
		if !ok {
			log.Printf("trip %s: stop %q without external id skipped", tripID, so.Stop.Name)
			continue
		}
		rs, err := c.rawStopover(st, so)
		if err != nil {
			return trips.RawTrip{}, err
		}
		raw.Stopovers = append(raw.Stopovers, rs)
	}
	return raw, nil
}

// rawStopover only carries real times whose delay field is present, since the
// upstream drops delays for stops already passed.
func (c *Client) rawStopover(st transit.Station, so stopover) (trips.RawStopover, error) {
	rs := trips.RawStopover{
		Station:                  st,
		ArrivalPlatformPlanned:   str(so.PlannedArrivalPlatform),
		DeparturePlatformPlanned: str(so.PlannedDeparturePlatform),
		Cancelled:                so.Cancelled,
	}
	var err error
	if rs.PlannedArrival, err = provider.ParseTime(str(so.PlannedArrival), c.zone); err != nil {
		return rs, c.upstream("trips", err)
	}
	if rs.PlannedDeparture, err = provider.ParseTime(str(so.PlannedDeparture), c.zone); err != nil {
		return rs, c.upstream("trips", err)
	}
	if so.Arrival != nil && so.ArrivalDelay != nil {
		if rs.RealArrival, err = provider.ParseTime(*so.Arrival, c.zone); err != nil {
			return rs, c.upstream("trips", err)
		}
		rs.ArrivalPlatformReal = str(so.ArrivalPlatform)
	}
	if so.Departure != nil && so.DepartureDelay != nil {
		if rs.RealDeparture, err = provider.ParseTime(*so.Departure, c.zone); err != nil {
			return rs, c.upstream("trips", err)
		}
		rs.DeparturePlatformReal = str(so.DeparturePlatform)
	}
	return rs, nil
}

// journeyNumber parses fahrtNr, "0" meaning none, and otherwise falls back to
// the run number embedded in the trip id.
func journeyNumber(fahrtNr, tripID string) *int64 {
	if fahrtNr == "0" {
		return nil
	}
	if n, err := strconv.ParseInt(fahrtNr, 10, 64); err == nil {
		return &n
	}
	if n, ok := trips.ExtractJourneyNumber(tripID); ok {
		return &n
	}
	return nil
}
