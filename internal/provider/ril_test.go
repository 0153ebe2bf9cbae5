package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-reconciler/internal/messages"
	"transit-reconciler/internal/transit"
)

type rilStore struct {
	found []transit.Station
	err   error
}

func (s rilStore) StationsByRilPrefix(context.Context, string) ([]transit.Station, error) {
	return s.found, s.err
}

func TestFuzzyRil(t *testing.T) {
	ctx := context.Background()
	msgs, err := messages.Load("en")
	require.NoError(t, err)
	exact := func(_ context.Context, ril string) (transit.Station, error) {
		if ril == "RK" {
			return transit.Station{ID: 1, RilIdentifier: "RK"}, nil
		}
		return transit.Station{}, ErrNotFound
	}

	got, err := FuzzyRil(ctx, rilStore{found: []transit.Station{{ID: 2}, {ID: 3}}}, msgs, "R", exact)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = FuzzyRil(ctx, rilStore{}, msgs, "RK", exact)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "RK", got[0].RilIdentifier)

	got, err = FuzzyRil(ctx, rilStore{}, msgs, "QQ", exact)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = FuzzyRil(ctx, rilStore{}, msgs, "", exact)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFuzzyRilStoreFailure(t *testing.T) {
	msgs, err := messages.Load("en")
	require.NoError(t, err)
	broken := errors.New("database is locked")

	_, err = FuzzyRil(context.Background(), rilStore{err: broken}, msgs, "R", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstream))
	assert.True(t, errors.Is(err, broken))
	assert.Equal(t, msgs.Get(messages.GeneralHafas), err.Error())
}
