package transit

import "time"

// Station is a canonical stop. IBNR 0 means the provider gave no external id.
type Station struct {
	ID            int64   `json:"id"`
	IBNR          int64   `json:"ibnr,omitempty"`
	RilIdentifier string  `json:"rilIdentifier,omitempty"`
	Name          string  `json:"name"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	TimeOffset    *int    `json:"timeOffset,omitempty"` // hours, nil until detected
	ShiftTime     bool    `json:"shiftTime"`
	Source        string  `json:"source,omitempty"`
	WikidataID    string  `json:"wikidataId,omitempty"`
}

type NearbyStation struct {
	Station
	Distance int `json:"distance"` // meters, as reported upstream
}

type Operator struct {
	ID      int64  `json:"id"`
	HafasID string `json:"hafasId"`
	Name    string `json:"name"`
}

type Trip struct {
	ID            int64           `json:"id"`
	TripID        string          `json:"tripId"`
	Category      HafasTravelType `json:"category"`
	Number        string          `json:"number"`
	LineName      string          `json:"lineName"`
	JourneyNumber *int64          `json:"journeyNumber,omitempty"`
	OperatorID    *int64          `json:"operatorId,omitempty"`
	OriginID      int64           `json:"originId"`
	DestinationID int64           `json:"destinationId"`
	PolylineID    *int64          `json:"polylineId,omitempty"`
	Departure     *time.Time      `json:"departure,omitempty"`
	Arrival       *time.Time      `json:"arrival,omitempty"`
	Delay         *int            `json:"delay,omitempty"` // seconds
	Source        TripSource      `json:"source"`
	Stopovers     []Stopover      `json:"stopovers,omitempty"`
}

// Stopover is one station visit. Real fields stay nil until a delay signal was seen.
type Stopover struct {
	ID                       int64      `json:"id"`
	TripID                   string     `json:"tripId"`
	StationID                int64      `json:"stationId"`
	ArrivalPlanned           time.Time  `json:"arrivalPlanned"`
	ArrivalReal              *time.Time `json:"arrivalReal,omitempty"`
	ArrivalPlatformPlanned   string     `json:"arrivalPlatformPlanned,omitempty"`
	ArrivalPlatformReal      string     `json:"arrivalPlatformReal,omitempty"`
	DeparturePlanned         time.Time  `json:"departurePlanned"`
	DepartureReal            *time.Time `json:"departureReal,omitempty"`
	DeparturePlatformPlanned string     `json:"departurePlatformPlanned,omitempty"`
	DeparturePlatformReal    string     `json:"departurePlatformReal,omitempty"`
	Cancelled                bool       `json:"cancelled"`
}

type Line struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	FahrtNr string          `json:"fahrtNr"`
	Product HafasTravelType `json:"product"`
}

// Departure is a transient board entry, never persisted.
type Departure struct {
	TripID          string     `json:"tripId"`
	Station         Station    `json:"station"`
	When            *time.Time `json:"when,omitempty"`
	PlannedWhen     time.Time  `json:"plannedWhen"`
	Delay           *int       `json:"delay,omitempty"` // seconds
	Platform        string     `json:"platform,omitempty"`
	PlannedPlatform string     `json:"plannedPlatform,omitempty"`
	Direction       string     `json:"direction"`
	Line            Line       `json:"line"`
	Cancelled       bool       `json:"cancelled,omitempty"`
}

// EffectiveWhen is the real time if known, else the planned one.
func (d Departure) EffectiveWhen() time.Time {
	if d.When != nil {
		return *d.When
	}
	return d.PlannedWhen
}
