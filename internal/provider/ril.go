package provider

import (
	"context"
	"errors"
	"fmt"

	"transit-reconciler/internal/messages"
	"transit-reconciler/internal/transit"
)

// RilStore is the local index of short station identifiers.
type RilStore interface {
	StationsByRilPrefix(ctx context.Context, prefix string) ([]transit.Station, error)
}

// FuzzyRil returns the stored stations whose short identifier starts with ril,
// ordered by identifier. Without a prefix match it falls back to exact and
// yields at most one station. A failing store is reported as ErrUpstream.
func FuzzyRil(ctx context.Context, store RilStore, msgs *messages.Catalog, ril string,
	exact func(context.Context, string) (transit.Station, error)) ([]transit.Station, error) {
	if ril == "" {
		return []transit.Station{}, nil
	}
	found, err := store.StationsByRilPrefix(ctx, ril)
	if err != nil {
		return nil, Upstream(msgs, "stations", messages.GeneralHafas, fmt.Errorf("fuzzy ril %s: %w", ril, err))
	}
	if len(found) > 0 {
		return found, nil
	}
	st, err := exact(ctx, ril)
	if errors.Is(err, ErrNotFound) {
		return []transit.Station{}, nil
	}
	if err != nil {
		return nil, err
	}
	return []transit.Station{st}, nil
}
