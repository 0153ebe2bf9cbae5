package provider

import "time"

// Family groups upstream operations for monitoring.
type Family string

const (
	FamilyLocations  Family = "locations"
	FamilyDepartures Family = "departures"
	FamilyTrips      Family = "trips"
	FamilyStations   Family = "stations"
	FamilyNearby     Family = "nearby"
)

type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeNotOK      Outcome = "not_ok"
	OutcomeFailure    Outcome = "failure"
	OutcomeBadGateway Outcome = "bad_gateway"
)

type CacheEvent string

const (
	CacheHit      CacheEvent = "hit"
	CacheSet      CacheEvent = "set"
	CacheNegative CacheEvent = "negative"
)

const (
	CorrectionOffset        = "offset"
	CorrectionShiftDisabled = "shift_disabled"
)

// Metrics receives the counters every provider component reports.
type Metrics interface {
	UpstreamRequest(f Family, o Outcome, d time.Duration)
	Cache(f Family, e CacheEvent)
	StationCorrected(kind string)
}

type NopMetrics struct{}

func (NopMetrics) UpstreamRequest(Family, Outcome, time.Duration) {}
func (NopMetrics) Cache(Family, CacheEvent)                       {}
func (NopMetrics) StationCorrected(string)                        {}

// OrNop returns m, or NopMetrics when m is nil.
func OrNop(m Metrics) Metrics {
	if m == nil {
		return NopMetrics{}
	}
	return m
}
