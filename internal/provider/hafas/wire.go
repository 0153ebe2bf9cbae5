package hafas

import (
	"bytes"
	"encoding/json"

	"transit-reconciler/internal/provider"
	"transit-reconciler/internal/stations"
)

type location struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type stop struct {
	Type     string               `json:"type"`
	ID       provider.LooseString `json:"id"`
	Name     string               `json:"name"`
	Location *location            `json:"location"`
	Ril100   string               `json:"ril100"`
	Distance *int                 `json:"distance"`
}

func (s stop) raw() stations.Raw {
	r := stations.Raw{IBNR: s.ID.Int64(), Name: s.Name, RilIdentifier: s.Ril100, LocationID: s.ID.String()}
	if s.Location != nil {
		r.Latitude, r.Longitude = s.Location.Latitude, s.Location.Longitude
	}
	return r
}

type operator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type line struct {
	ID       *string               `json:"id"`
	Name     *string               `json:"name"`
	FahrtNr  *provider.LooseString `json:"fahrtNr"`
	Product  string                `json:"product"`
	Operator *operator             `json:"operator"`
}

func (l line) fahrtNr() string {
	if l.FahrtNr == nil {
		return ""
	}
	return l.FahrtNr.String()
}

type departure struct {
	TripID          string  `json:"tripId"`
	Stop            stop    `json:"stop"`
	When            *string `json:"when"`
	PlannedWhen     *string `json:"plannedWhen"`
	Delay           *int    `json:"delay"`
	Platform        *string `json:"platform"`
	PlannedPlatform *string `json:"plannedPlatform"`
	Direction       string  `json:"direction"`
	Line            line    `json:"line"`
	Cancelled       bool    `json:"cancelled"`
}

type stopover struct {
	Stop stop `json:"stop"`

	Arrival                *string `json:"arrival"`
	PlannedArrival         *string `json:"plannedArrival"`
	ArrivalDelay           *int    `json:"arrivalDelay"`
	ArrivalPlatform        *string `json:"arrivalPlatform"`
	PlannedArrivalPlatform *string `json:"plannedArrivalPlatform"`

	Departure                *string `json:"departure"`
	PlannedDeparture         *string `json:"plannedDeparture"`
	DepartureDelay           *int    `json:"departureDelay"`
	DeparturePlatform        *string `json:"departurePlatform"`
	PlannedDeparturePlatform *string `json:"plannedDeparturePlatform"`

	Cancelled *bool `json:"cancelled"`
}

type trip struct {
	ID               string          `json:"id"`
	Origin           stop            `json:"origin"`
	Destination      stop            `json:"destination"`
	PlannedDeparture *string         `json:"plannedDeparture"`
	PlannedArrival   *string         `json:"plannedArrival"`
	ArrivalDelay     *int            `json:"arrivalDelay"`
	Line             line            `json:"line"`
	Polyline         json.RawMessage `json:"polyline"`
	Stopovers        []stopover      `json:"stopovers"`
}

// decodeDepartures accepts both the bare array and the {"departures": [...]} envelope.
func decodeDepartures(body []byte) ([]departure, error) {
	body = bytes.TrimSpace(body)
	var out []departure
	if len(body) > 0 && body[0] == '{' {
		var env struct {
			Departures []departure `json:"departures"`
		}
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, err
		}
		return env.Departures, nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// decodeTrip accepts both the bare trip and the {"trip": {...}} envelope.
func decodeTrip(body []byte) (*trip, error) {
	var env struct {
		Trip *trip `json:"trip"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	if env.Trip != nil {
		return env.Trip, nil
	}
	var t trip
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
