package cached

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-reconciler/internal/cache"
	"transit-reconciler/internal/provider"
	"transit-reconciler/internal/transit"
)

type fakeProvider struct {
	mu         sync.Mutex
	calls      map[string]int
	departures []transit.Departure
	board      func(provider.DepartureQuery) []transit.Departure
	lastQuery  provider.DepartureQuery
	err        error
}

func newFake() *fakeProvider { return &fakeProvider{calls: map[string]int{}} }

func (f *fakeProvider) hit(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

func (f *fakeProvider) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeProvider) GetStations(_ context.Context, query string, _ int) ([]transit.Station, error) {
	f.hit("stations")
	if f.err != nil {
		return nil, f.err
	}
	return []transit.Station{{ID: 1, Name: query}}, nil
}

func (f *fakeProvider) GetStationByRilIdentifier(_ context.Context, ril string) (transit.Station, error) {
	f.hit("ril")
	return transit.Station{ID: 2, RilIdentifier: ril}, f.err
}

func (f *fakeProvider) GetStationsByFuzzyRilIdentifier(_ context.Context, ril string) ([]transit.Station, error) {
	f.hit("fuzzy")
	return []transit.Station{{ID: 2, RilIdentifier: ril}}, f.err
}

func (f *fakeProvider) GetDepartures(_ context.Context, q provider.DepartureQuery) ([]transit.Departure, error) {
	f.hit("departures")
	f.mu.Lock()
	f.lastQuery = q
	f.mu.Unlock()
	if f.board != nil {
		return f.board(q), f.err
	}
	return f.departures, f.err
}

func (f *fakeProvider) GetNearbyStations(context.Context, float64, float64, int) ([]transit.NearbyStation, error) {
	f.hit("nearby")
	return []transit.NearbyStation{{Distance: 10}}, nil
}

func (f *fakeProvider) FetchTrip(_ context.Context, tripID, lineName string) (transit.Trip, error) {
	f.hit("trip")
	return transit.Trip{TripID: tripID, LineName: lineName}, f.err
}

func (f *fakeProvider) FetchRawTrip(context.Context, string, string) (json.RawMessage, error) {
	f.hit("raw")
	return json.RawMessage(`{}`), nil
}

type countingMetrics struct {
	provider.NopMetrics
	mu     sync.Mutex
	events map[provider.CacheEvent]int
}

func (m *countingMetrics) Cache(_ provider.Family, e provider.CacheEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events == nil {
		m.events = map[provider.CacheEvent]int{}
	}
	m.events[e]++
}

func at(h, m int) time.Time { return time.Date(2024, 7, 1, h, m, 0, 0, time.UTC) }

func TestBucket(t *testing.T) {
	assert.Equal(t, at(10, 0), Bucket(at(10, 3)))
	assert.Equal(t, at(10, 0), Bucket(at(10, 16)))
	assert.Equal(t, at(10, 15), Bucket(at(10, 17)))
	assert.Equal(t, at(9, 45), Bucket(at(10, 1)))
	assert.Equal(t, at(10, 0), Bucket(time.Date(2024, 7, 1, 10, 14, 59, 0, time.UTC)))
}

func TestDeparturesKey(t *testing.T) {
	st := transit.Station{ID: 42}
	key := func(when time.Time, localtime bool, typ transit.TravelType) string {
		return DeparturesKey(provider.DepartureQuery{Station: st, When: Bucket(when), Duration: 30, Localtime: localtime, Type: typ})
	}
	assert.Equal(t, key(at(10, 3), false, ""), key(at(10, 14), false, ""))
	assert.NotEqual(t, key(at(10, 3), false, ""), key(at(10, 20), false, ""))
	assert.NotEqual(t, key(at(10, 3), false, ""), key(at(10, 3), true, ""))
	assert.NotEqual(t, key(at(10, 3), false, ""), key(at(10, 3), false, transit.TravelBus))
	assert.NotEqual(t, key(at(10, 3), false, ""), key(at(10, 3).AddDate(0, 0, 1), false, ""))
	assert.Equal(t, "_HafasDepartures_42_2024-07-01T10:00:00Z_30_utc_all", key(at(10, 3), false, ""))

	wider := DeparturesKey(provider.DepartureQuery{Station: st, When: Bucket(at(10, 3)), Duration: 75})
	assert.NotEqual(t, key(at(10, 3), false, ""), wider)
}

func TestDurationClass(t *testing.T) {
	assert.Equal(t, 15, DurationClass(0))
	assert.Equal(t, 15, DurationClass(15*time.Minute))
	assert.Equal(t, 30, DurationClass(16*time.Minute))
	assert.Equal(t, 30, DurationClass(29*time.Minute+30*time.Second))
	assert.Equal(t, 75, DurationClass(65*time.Minute))
}

func TestTripKey(t *testing.T) {
	assert.Equal(t, "_HafasTrip_"+"a9993e364706816aba3e25717850c26c9cd0d89d"+"_ICE 1", TripKey("abc", "ICE 1"))
	assert.NotEqual(t, TripKey("1|2", "RE 1"), TripKey("1|3", "RE 1"))
	assert.Equal(t, "_HafasStations-for-Karlsruhe", StationsKey("Karlsruhe"))
	assert.Equal(t, "_HafasStationRil-for-RK", RilKey("RK"))
	assert.Equal(t, "_HafasStationsFuzzy-for-RK", FuzzyRilKey("RK"))
}

func TestGetDeparturesCachesBucketAndFilters(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	planned := func(h, m int) transit.Departure { return transit.Departure{TripID: at(h, m).Format("15:04"), PlannedWhen: at(h, m)} }
	delayed := at(10, 36)
	late := planned(10, 30)
	late.When = &delayed
	fake.departures = []transit.Departure{planned(10, 0), planned(10, 10), late, planned(10, 40)}
	p := New(fake, cache.New(100), 0, nil)

	got, err := p.GetDepartures(ctx, provider.DepartureQuery{Station: transit.Station{ID: 7}, When: at(10, 5), Duration: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "10:10", got[0].TripID)
	assert.Equal(t, at(10, 0), fake.lastQuery.When)
	assert.Equal(t, 45, fake.lastQuery.Duration, "widened window plus the offset into the bucket")

	got, err = p.GetDepartures(ctx, provider.DepartureQuery{Station: transit.Station{ID: 7}, When: at(10, 12), Duration: 30})
	require.NoError(t, err)
	assert.Equal(t, 1, fake.count("departures"), "same bucket and class is served from cache")
	require.Len(t, got, 2)
	assert.Equal(t, "10:30", got[0].TripID, "real time decides the window")
	assert.Equal(t, "10:40", got[1].TripID)
}

// every five minutes inside the asked window, like a real board
func windowBoard(q provider.DepartureQuery) []transit.Departure {
	var out []transit.Departure
	until := q.When.Add(time.Duration(q.Duration) * time.Minute)
	for ts := q.When.Truncate(5 * time.Minute); !ts.After(until); ts = ts.Add(5 * time.Minute) {
		if ts.Before(q.When) {
			continue
		}
		out = append(out, transit.Departure{TripID: ts.Format("15:04"), PlannedWhen: ts})
	}
	return out
}

func tripIDs(deps []transit.Departure) []string {
	out := make([]string, 0, len(deps))
	for _, d := range deps {
		out = append(out, d.TripID)
	}
	return out
}

func TestGetDeparturesCoversRequestedWindow(t *testing.T) {
	ctx := context.Background()
	st := transit.Station{ID: 7}

	tests := []struct {
		name string
		when time.Time
		dur  int
		want []string
	}{
		{"late in bucket", at(10, 14), 15, []string{"10:15", "10:20", "10:25"}},
		{"early in bucket", at(10, 2), 15, []string{"10:05", "10:10", "10:15"}},
		{"short window is widened", at(10, 7), 5, []string{"10:10", "10:15", "10:20", "10:25", "10:30", "10:35"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFake()
			fake.board = windowBoard
			p := New(fake, cache.New(100), 0, nil)
			q := provider.DepartureQuery{Station: st, When: tt.when, Duration: tt.dur}

			got, err := p.GetDepartures(ctx, q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tripIDs(got))
		})
	}

	t.Run("longer window after a short one", func(t *testing.T) {
		fake := newFake()
		fake.board = windowBoard
		p := New(fake, cache.New(100), 0, nil)

		short, err := p.GetDepartures(ctx, provider.DepartureQuery{Station: st, When: at(10, 5), Duration: 15})
		require.NoError(t, err)
		assert.Len(t, short, 4)

		long, err := p.GetDepartures(ctx, provider.DepartureQuery{Station: st, When: at(10, 5), Duration: 60})
		require.NoError(t, err)
		assert.Len(t, long, 13)
		assert.Equal(t, "10:05", long[0].TripID)
		assert.Equal(t, "11:05", long[12].TripID)
		assert.Equal(t, 2, fake.count("departures"))

		again, err := p.GetDepartures(ctx, provider.DepartureQuery{Station: st, When: at(10, 10), Duration: 60})
		require.NoError(t, err)
		assert.Len(t, again, 13)
		assert.Equal(t, 2, fake.count("departures"), "same class reuses the wider fetch")
	})
}

func TestNegativeCacheReraises(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	boom := &provider.UpstreamError{Op: "locations", Message: "timetable unavailable", Err: errors.New("dial tcp: timeout")}
	fake.err = boom
	m := &countingMetrics{}
	p := New(fake, cache.New(100), time.Minute, m)

	for i := 0; i < 3; i++ {
		got, err := p.GetStations(ctx, "Karlsruhe", 5)
		require.Error(t, err)
		assert.Nil(t, got)
		assert.True(t, errors.Is(err, provider.ErrUpstream))
		assert.Equal(t, "timetable unavailable", err.Error())
	}
	assert.Equal(t, 1, fake.count("stations"))
	assert.Equal(t, 1, m.events[provider.CacheNegative])
	assert.Equal(t, 2, m.events[provider.CacheHit])

	_, err := p.FetchTrip(ctx, "1|2", "RE 1")
	require.Error(t, err)
	_, err = p.FetchTrip(ctx, "1|2", "RE 1")
	require.Error(t, err)
	assert.Equal(t, 1, fake.count("trip"))
}

func TestCachedHits(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	p := New(fake, cache.New(100), time.Minute, nil)

	for i := 0; i < 2; i++ {
		trip, err := p.FetchTrip(ctx, "1|2", "RE 1")
		require.NoError(t, err)
		assert.Equal(t, "RE 1", trip.LineName)
		_, err = p.GetStationByRilIdentifier(ctx, "RK")
		require.NoError(t, err)
		_, err = p.GetStationsByFuzzyRilIdentifier(ctx, "R")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, fake.count("trip"))
	assert.Equal(t, 1, fake.count("ril"))
	assert.Equal(t, 1, fake.count("fuzzy"))

	_, err := p.FetchTrip(ctx, "1|2", "RE 2")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.count("trip"), "line name is part of the key")
}

func TestPassthrough(t *testing.T) {
	ctx := context.Background()
	fake := newFake()
	p := New(fake, cache.New(100), 0, nil)
	for i := 0; i < 2; i++ {
		_, err := p.GetNearbyStations(ctx, 1, 2, 3)
		require.NoError(t, err)
		_, err = p.FetchRawTrip(ctx, "1", "")
		require.NoError(t, err)
	}
	assert.Equal(t, 2, fake.count("nearby"))
	assert.Equal(t, 2, fake.count("raw"))
}
