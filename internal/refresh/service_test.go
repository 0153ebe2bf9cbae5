package refresh

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-reconciler/internal/db"
	"transit-reconciler/internal/provider"
	"transit-reconciler/internal/transit"
)

// boardProvider only answers departure boards.
type boardProvider struct {
	provider.Provider
	departures []transit.Departure
	err        error
	queries    []provider.DepartureQuery
}

func (b *boardProvider) GetDepartures(_ context.Context, q provider.DepartureQuery) ([]transit.Departure, error) {
	b.queries = append(b.queries, q)
	return b.departures, b.err
}

var planned = time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)

func seedStopover(t *testing.T) (*db.Store, transit.Stopover) {
	t.Helper()
	ctx := context.Background()
	sqlDB, err := db.Open(db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	store := db.NewStore(sqlDB, db.DriverSQLite)
	require.NoError(t, store.Migrate(ctx))

	st, err := store.UpsertStation(ctx, db.StationRow{IBNR: 8000105, Name: "Frankfurt(Main)Hbf"})
	require.NoError(t, err)
	trip := transit.Trip{TripID: "1|100|0", Category: transit.NationalExpress, LineName: "ICE 1",
		OriginID: st.ID, DestinationID: st.ID, Source: transit.SourceHafas}
	require.NoError(t, store.UpsertTrip(ctx, &trip))
	require.NoError(t, store.UpsertStopover(ctx, db.StopoverWrite{
		TripID: trip.TripID, StationID: st.ID, ArrivalPlanned: planned, DeparturePlanned: planned,
	}))
	sos, err := store.StopoversByTrip(ctx, trip.TripID)
	require.NoError(t, err)
	require.Len(t, sos, 1)
	return store, sos[0]
}

func TestRefreshStopoverStoresDeviation(t *testing.T) {
	ctx := context.Background()
	store, so := seedStopover(t)
	late := planned.Add(7 * time.Minute)
	other := planned.Add(time.Minute)
	p := &boardProvider{departures: []transit.Departure{
		{TripID: "9|9|9", When: &other, PlannedWhen: planned},
		{TripID: so.TripID, When: &late, PlannedWhen: planned},
	}}

	res, err := NewService(store, p).RefreshStopoverByID(ctx, so.ID)
	require.NoError(t, err)
	assert.Equal(t, Updated, res)

	require.Len(t, p.queries, 1)
	assert.Equal(t, int64(8000105), p.queries[0].Station.IBNR)
	assert.True(t, p.queries[0].When.Equal(planned))

	got, err := store.StopoverByID(ctx, so.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DepartureReal)
	assert.True(t, got.DepartureReal.Equal(late))
}

func TestRefreshStopoverNoOps(t *testing.T) {
	onTime := planned
	cases := []struct {
		name       string
		departures []transit.Departure
	}{
		{"no match", []transit.Departure{{TripID: "other", When: &onTime, PlannedWhen: planned}}},
		{"no real time", []transit.Departure{{TripID: "1|100|0", PlannedWhen: planned}}},
		{"on time", []transit.Departure{{TripID: "1|100|0", When: &onTime, PlannedWhen: planned}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store, so := seedStopover(t)
			res, err := NewService(store, &boardProvider{departures: tc.departures}).RefreshStopover(ctx, so)
			require.NoError(t, err)
			assert.Equal(t, Unchanged, res)

			got, err := store.StopoverByID(ctx, so.ID)
			require.NoError(t, err)
			assert.Nil(t, got.DepartureReal)
		})
	}
}

func TestRefreshStopoverWithoutPlannedDeparture(t *testing.T) {
	p := &boardProvider{}
	res, err := NewService(nil, p).RefreshStopover(context.Background(), transit.Stopover{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, Unchanged, res)
	assert.Empty(t, p.queries)
}

func TestRefreshStopoverPropagatesUpstreamError(t *testing.T) {
	store, so := seedStopover(t)
	p := &boardProvider{err: &provider.UpstreamError{Op: "departures", Message: "down", Err: errors.New("timeout")}}
	res, err := NewService(store, p).RefreshStopover(context.Background(), so)
	assert.Equal(t, Failed, res)
	assert.True(t, errors.Is(err, provider.ErrUpstream))
}

func TestRefreshStopoverByIDMissing(t *testing.T) {
	store, _ := seedStopover(t)
	res, err := NewService(store, &boardProvider{}).RefreshStopoverByID(context.Background(), 999)
	assert.Equal(t, Failed, res)
	assert.True(t, errors.Is(err, db.ErrNotFound))
}
