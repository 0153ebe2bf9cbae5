// Package cached puts a read-through cache in front of a provider. Failures
// are remembered as negative entries for the same expiry and re-raised on
// every hit, so a failing upstream is not hammered.
package cached

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"transit-reconciler/internal/cache"
	"transit-reconciler/internal/provider"
	"transit-reconciler/internal/transit"
)

const (
	DefaultTTL = 15 * time.Minute

	bucketSize  = 15 // minutes
	lookBehind  = 2 * time.Minute
	minDuration = 15
	// boards shorter than minDuration are fetched with this window instead
	widenedDuration = 30
)

type Provider struct {
	next    provider.Provider
	store   cache.Store
	ttl     time.Duration
	metrics provider.Metrics
	group   singleflight.Group
}

var _ provider.Provider = (*Provider)(nil)

// New wraps next. A zero ttl means DefaultTTL.
func New(next provider.Provider, store cache.Store, ttl time.Duration, m provider.Metrics) *Provider {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Provider{next: next, store: store, ttl: ttl, metrics: provider.OrNop(m)}
}

type negative struct {
	err error
}

func remember[T any](p *Provider, f provider.Family, key string, fetch func() (T, error)) (T, error) {
	var zero T
	if v, ok := p.store.Get(key); ok {
		switch e := v.(type) {
		case negative:
			p.metrics.Cache(f, provider.CacheHit)
			return zero, e.err
		case T:
			p.metrics.Cache(f, provider.CacheHit)
			return e, nil
		}
	}
	v, err, _ := p.group.Do(key, func() (any, error) {
		res, err := fetch()
		if err != nil {
			p.store.Set(key, negative{err: err}, p.ttl)
			p.metrics.Cache(f, provider.CacheNegative)
			return nil, err
		}
		p.store.Set(key, res, p.ttl)
		p.metrics.Cache(f, provider.CacheSet)
		return res, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

func (p *Provider) GetStations(ctx context.Context, query string, results int) ([]transit.Station, error) {
	return remember(p, provider.FamilyLocations, StationsKey(query), func() ([]transit.Station, error) {
		return p.next.GetStations(ctx, query, results)
	})
}

func (p *Provider) GetStationByRilIdentifier(ctx context.Context, ril string) (transit.Station, error) {
	return remember(p, provider.FamilyStations, RilKey(ril), func() (transit.Station, error) {
		return p.next.GetStationByRilIdentifier(ctx, ril)
	})
}

func (p *Provider) GetStationsByFuzzyRilIdentifier(ctx context.Context, ril string) ([]transit.Station, error) {
	return remember(p, provider.FamilyStations, FuzzyRilKey(ril), func() ([]transit.Station, error) {
		return p.next.GetStationsByFuzzyRilIdentifier(ctx, ril)
	})
}

// GetDepartures fetches from the 15 minute bucket around q.When far enough to
// cover the requested window and trims the result to that window.
func (p *Provider) GetDepartures(ctx context.Context, q provider.DepartureQuery) ([]transit.Departure, error) {
	q = q.WithDefaults()
	from := q.When
	window := q.Duration
	if window < minDuration {
		window = widenedDuration
	}
	bucketed := q
	bucketed.When = Bucket(q.When)
	bucketed.Duration = DurationClass(from.Sub(bucketed.When) + time.Duration(window)*time.Minute)
	all, err := remember(p, provider.FamilyDepartures, DeparturesKey(bucketed), func() ([]transit.Departure, error) {
		return p.next.GetDepartures(ctx, bucketed)
	})
	if err != nil {
		return nil, err
	}
	until := from.Add(time.Duration(window) * time.Minute)
	out := make([]transit.Departure, 0, len(all))
	for _, d := range all {
		at := d.EffectiveWhen()
		if at.Before(from) || at.After(until) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (p *Provider) FetchTrip(ctx context.Context, tripID, lineName string) (transit.Trip, error) {
	return remember(p, provider.FamilyTrips, TripKey(tripID, lineName), func() (transit.Trip, error) {
		return p.next.FetchTrip(ctx, tripID, lineName)
	})
}

func (p *Provider) GetNearbyStations(ctx context.Context, lat, lon float64, results int) ([]transit.NearbyStation, error) {
	return p.next.GetNearbyStations(ctx, lat, lon, results)
}

func (p *Provider) FetchRawTrip(ctx context.Context, tripID, lineName string) (json.RawMessage, error) {
	return p.next.FetchRawTrip(ctx, tripID, lineName)
}

// Bucket moves t back by two minutes and floors it to a quarter hour in its own zone.
func Bucket(t time.Time) time.Time {
	t = t.Add(-lookBehind)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()/bucketSize*bucketSize, 0, 0, t.Location())
}

// DurationClass rounds span up to whole buckets, in minutes.
func DurationClass(span time.Duration) int {
	step := time.Duration(bucketSize) * time.Minute
	n := int((span + step - 1) / step)
	if n < 1 {
		n = 1
	}
	return n * bucketSize
}

// DeparturesKey expects q to be bucketed already, with q.Duration a class.
func DeparturesKey(q provider.DepartureQuery) string {
	mode := "utc"
	if q.Localtime {
		mode = "local"
	}
	typ := "all"
	if q.Type != transit.TravelAll {
		typ = string(q.Type)
	}
	return fmt.Sprintf("_HafasDepartures_%d_%s_%d_%s_%s", q.Station.ID, q.When.UTC().Format(time.RFC3339), q.Duration, mode, typ)
}

func TripKey(tripID, lineName string) string {
	sum := sha1.Sum([]byte(tripID))
	return fmt.Sprintf("_HafasTrip_%s_%s", hex.EncodeToString(sum[:]), lineName)
}

func StationsKey(query string) string { return forKey("_HafasStations", query) }
func RilKey(ril string) string        { return forKey("_HafasStationRil", ril) }
func FuzzyRilKey(ril string) string   { return forKey("_HafasStationsFuzzy", ril) }

func forKey(prefix, v string) string { return fmt.Sprintf("%s-for-%s", prefix, v) }
