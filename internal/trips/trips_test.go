package trips

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-reconciler/internal/cache"
	"transit-reconciler/internal/db"
	"transit-reconciler/internal/polyline"
	"transit-reconciler/internal/transit"
)

func newStore(t *testing.T) *db.Store {
	t.Helper()
	sqlDB, err := db.Open(db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	s := db.NewStore(sqlDB, db.DriverSQLite)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func at(h, m int) *time.Time {
	t := time.Date(2024, 7, 1, h, m, 0, 0, time.UTC)
	return &t
}

func boolp(b bool) *bool { return &b }

func TestStopoverPlannedFallback(t *testing.T) {
	tests := []struct {
		name     string
		raw      RawStopover
		arr, dep *time.Time
		arrReal  *time.Time
		depReal  *time.Time
		ok       bool
	}{
		{"origin has departure only", RawStopover{PlannedDeparture: at(8, 0), RealDeparture: at(8, 2)}, at(8, 0), at(8, 0), at(8, 2), at(8, 2), true},
		{"terminus has arrival only", RawStopover{PlannedArrival: at(9, 0)}, at(9, 0), at(9, 0), nil, nil, true},
		{"both present", RawStopover{PlannedArrival: at(8, 30), PlannedDeparture: at(8, 32), RealArrival: at(8, 31)}, at(8, 30), at(8, 32), at(8, 31), nil, true},
		{"neither present", RawStopover{}, nil, nil, nil, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, ok := Stopover("trip", tt.raw)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.True(t, w.ArrivalPlanned.Equal(*tt.arr))
			assert.True(t, w.DeparturePlanned.Equal(*tt.dep))
			assert.Equal(t, tt.arrReal, w.ArrivalReal)
			assert.Equal(t, tt.depReal, w.DepartureReal)
		})
	}
}

func seedStations(t *testing.T, s *db.Store) (transit.Station, transit.Station) {
	t.Helper()
	ctx := context.Background()
	a, err := s.UpsertStation(ctx, db.StationRow{IBNR: 8000105, Name: "Frankfurt(Main)Hbf", Latitude: 50.107, Longitude: 8.663})
	require.NoError(t, err)
	b, err := s.UpsertStation(ctx, db.StationRow{IBNR: 8000191, Name: "Karlsruhe Hbf", Latitude: 48.994, Longitude: 8.400})
	require.NoError(t, err)
	return a, b
}

func rawTrip(a, b transit.Station, cancelled *bool) RawTrip {
	return RawTrip{
		TripID:           "1|200|0|80|1072024",
		Category:         transit.NationalExpress,
		Number:           "ice-75",
		LineName:         "ICE 75",
		Operator:         &RawOperator{ID: "db-fernverkehr-ag", Name: "DB Fernverkehr AG"},
		Origin:           a,
		Destination:      b,
		PlannedDeparture: at(8, 0),
		PlannedArrival:   at(9, 0),
		Source:           transit.SourceHafas,
		Stopovers: []RawStopover{
			{Station: a, PlannedDeparture: at(8, 0), DeparturePlatformPlanned: "7", Cancelled: cancelled},
			{Station: b, PlannedArrival: at(9, 0), ArrivalPlatformPlanned: "3"},
		},
		Geometry: polyline.FromPoints([]polyline.Point{
			{Lat: 50.1, Lon: 8.66}, {Lat: 49.5, Lon: 8.5}, {Lat: 48.99, Lon: 8.4},
		}),
	}
}

func TestPersistCancellationNotResetByOmission(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	a, b := seedStations(t, s)
	n := NewNormalizer(s)

	first, err := n.Persist(ctx, rawTrip(a, b, boolp(true)))
	require.NoError(t, err)
	require.Len(t, first.Stopovers, 2)
	assert.True(t, first.Stopovers[0].Cancelled)

	again, err := n.Persist(ctx, rawTrip(a, b, nil))
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	require.Len(t, again.Stopovers, 2)
	assert.True(t, again.Stopovers[0].Cancelled)

	reset, err := n.Persist(ctx, rawTrip(a, b, boolp(false)))
	require.NoError(t, err)
	assert.False(t, reset.Stopovers[0].Cancelled)
}

func TestPersistStoresTripPolylineAndOperator(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	a, b := seedStations(t, s)

	trip, err := NewNormalizer(s).Persist(ctx, rawTrip(a, b, nil))
	require.NoError(t, err)

	require.NotNil(t, trip.OperatorID)
	require.NotNil(t, trip.PolylineID)
	assert.Equal(t, a.ID, trip.OriginID)
	assert.Equal(t, b.ID, trip.DestinationID)

	stored, err := s.TripByTripID(ctx, trip.TripID)
	require.NoError(t, err)
	assert.Equal(t, "ICE 75", stored.LineName)
	assert.Equal(t, *trip.PolylineID, *stored.PolylineID)

	payload, err := s.PolylineByID(ctx, *trip.PolylineID)
	require.NoError(t, err)
	var fc polyline.FeatureCollection
	require.NoError(t, json.Unmarshal([]byte(payload), &fc))
	require.Len(t, fc.Features, 3)
	assert.Equal(t, "Frankfurt(Main)Hbf", fc.Features[0].Properties["name"])
	assert.Empty(t, fc.Features[1].Properties)
	assert.Equal(t, "Karlsruhe Hbf", fc.Features[2].Properties["name"])

	// terminus arrives only, departure mirrors it
	last := trip.Stopovers[1]
	assert.True(t, last.DeparturePlanned.Equal(last.ArrivalPlanned))
	assert.Equal(t, "3", last.ArrivalPlatformPlanned)
}

func TestPersistRawGeometryVerbatim(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	a, b := seedStations(t, s)

	raw := rawTrip(a, b, nil)
	raw.Geometry = nil
	raw.RawGeometry = json.RawMessage(`{"type":"FeatureCollection","features":[]}`)

	trip, err := NewNormalizer(s).Persist(ctx, raw)
	require.NoError(t, err)
	require.NotNil(t, trip.PolylineID)
	payload, err := s.PolylineByID(ctx, *trip.PolylineID)
	require.NoError(t, err)
	assert.Equal(t, string(raw.RawGeometry), payload)

	raw.RawGeometry = json.RawMessage(`null`)
	_, err = NewNormalizer(s).Persist(ctx, raw)
	require.NoError(t, err)
	stored, err := s.TripByTripID(ctx, raw.TripID)
	require.NoError(t, err)
	// a payload without geometry keeps the stored polyline
	assert.NotNil(t, stored.PolylineID)
}

type racingStore struct {
	*db.Store
	fail error
}

func (r *racingStore) UpsertStopover(ctx context.Context, w db.StopoverWrite) error {
	return r.fail
}

func TestPersistSwallowsUniqueRaceOnly(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	a, b := seedStations(t, s)

	// provoke a real unique violation to get a driver error value
	_, err := s.CreateStation(ctx, transit.Station{IBNR: a.IBNR, Name: "dup"})
	require.Error(t, err)
	require.True(t, db.IsUniqueViolation(err))

	_, err = NewNormalizer(&racingStore{Store: s, fail: err}).Persist(ctx, rawTrip(a, b, nil))
	assert.NoError(t, err)

	_, err = NewNormalizer(&racingStore{Store: s, fail: fmt.Errorf("disk full")}).Persist(ctx, rawTrip(a, b, nil))
	assert.Error(t, err)
}

func TestResolveCategory(t *testing.T) {
	assert.Equal(t, transit.Suburban, ResolveCategory([]transit.HafasTravelType{"", transit.Suburban, transit.Bus}, nil))
	assert.Equal(t, transit.Tram, ResolveCategory([]transit.HafasTravelType{""}, &Association{Category: transit.Tram}))
	assert.Equal(t, transit.Regional, ResolveCategory(nil, nil))
}

func TestExtractJourneyNumber(t *testing.T) {
	n, ok := ExtractJourneyNumber("2|#VN#1#ST#1720000000#PI#0#ZI#1234#TA#0#DA#10724#1S#8000105#ZE#1234#ZB#ICE  75#")
	require.True(t, ok)
	assert.Equal(t, int64(1234), n)

	_, ok = ExtractJourneyNumber("1|200|0|80|1072024")
	assert.False(t, ok)
}

func TestAssociationsKeepFirst(t *testing.T) {
	a := NewAssociations(cache.New(10))
	a.Remember("j1", Association{Category: transit.NationalExpress, LineName: "ICE 75"})
	a.Remember("j1", Association{Category: transit.Bus, LineName: "Bus 1"})

	got, ok := a.Lookup("j1")
	require.True(t, ok)
	assert.Equal(t, "ICE 75", got.LineName)

	_, ok = a.Lookup("j2")
	assert.False(t, ok)
}
