package stations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-reconciler/internal/db"
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

func f(v float64) *float64 { return &v }

func TestUpsertIsIdempotentAndOrdered(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	m := NewMatcher(store, string(transit.SourceHafas))

	batch := []Raw{
		{IBNR: 8000207, Name: "Köln Hbf", Latitude: f(50.94), Longitude: f(6.96)},
		{IBNR: 8000105, Name: "Frankfurt(Main)Hbf", Latitude: f(50.10), Longitude: f(8.66)},
		{IBNR: 8011160, Name: "Berlin Hbf", Latitude: f(52.52), Longitude: f(13.37)},
	}
	first, err := m.Upsert(ctx, batch)
	require.NoError(t, err)

	reversed := []Raw{batch[2], batch[0], batch[1]}
	second, err := m.Upsert(ctx, reversed)
	require.NoError(t, err)

	require.Len(t, second, 3)
	for i, r := range reversed {
		assert.Equal(t, r.IBNR, second[i].IBNR)
	}
	byIBNR := Index(first)
	for _, st := range second {
		assert.Equal(t, byIBNR[st.IBNR].ID, st.ID, "no duplicate row for %d", st.IBNR)
	}

	var n int
	require.NoError(t, store.DB().QueryRow(`SELECT COUNT(*) FROM train_stations`).Scan(&n))
	assert.Equal(t, 3, n)
}

func TestUpsertFiltersAndDedupes(t *testing.T) {
	ctx := context.Background()
	m := NewMatcher(newStore(t), "hafas")

	got, err := m.Upsert(ctx, []Raw{
		{Name: "no id"},
		{IBNR: 2, Name: "B"},
		{IBNR: 1, Name: "A"},
		{IBNR: 2, Name: "B again"},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].IBNR)
	assert.Equal(t, "B", got[0].Name)
	assert.Equal(t, int64(1), got[1].IBNR)
}

type countingStore struct {
	Store
	calls int
}

func (c *countingStore) UpsertStations(ctx context.Context, rows []db.StationRow) error {
	c.calls++
	return nil
}

func (c *countingStore) StationsByIBNR(ctx context.Context, ibnrs []int64) (map[int64]transit.Station, error) {
	c.calls++
	return nil, nil
}

func TestUpsertEmptyIssuesNoQuery(t *testing.T) {
	store := &countingStore{}
	m := NewMatcher(store, "hafas")

	got, err := m.Upsert(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = m.Upsert(context.Background(), []Raw{{Name: "only unnamed"}})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, store.calls)
}

func TestUpsertStopCoordinatesFromLocationID(t *testing.T) {
	ctx := context.Background()
	m := NewMatcher(newStore(t), string(transit.SourceBahnWebAPI))

	st, err := m.UpsertStop(ctx, Raw{
		IBNR:       714800,
		Name:       "Druseltal, Kassel",
		LocationID: "A=1@O=Druseltal, Kassel@X=9414484@Y=51301106@U=81@L=714800@",
	})
	require.NoError(t, err)
	assert.InDelta(t, 51.301106, st.Latitude, 1e-9)
	assert.InDelta(t, 9.414484, st.Longitude, 1e-9)
	assert.Equal(t, "bahn-web-api", st.Source)

	broken, err := m.UpsertStop(ctx, Raw{IBNR: 1, Name: "Nowhere", LocationID: "A=1@O=Nowhere@"})
	require.NoError(t, err)
	assert.Zero(t, broken.Latitude)
	assert.Zero(t, broken.Longitude)

	_, err = m.UpsertStop(ctx, Raw{Name: "no id"})
	assert.Error(t, err)
}

func TestParseCoordinates(t *testing.T) {
	tests := []struct {
		id       string
		lat, lon float64
		ok       bool
	}{
		{"@X=9414484@Y=51301106@", 51.301106, 9.414484, true},
		{"A=1@O=Ushuaia@X=-68303000@Y=-54801000@", -54.801, -68.303, true},
		{"A=1@O=Kassel@Y=51301106@", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			lat, lon, ok := ParseCoordinates(tt.id)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.lat, lat, 1e-9)
			assert.InDelta(t, tt.lon, lon, 1e-9)
		})
	}
}
