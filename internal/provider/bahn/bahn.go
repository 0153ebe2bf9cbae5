// Package bahn adapts the bahn.de web portal API. Its departure boards carry
// line data the journey endpoint lacks, so boards remember it per journey.
package bahn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"time"

	"transit-reconciler/internal/cache"
	"transit-reconciler/internal/db"
	"transit-reconciler/internal/messages"
	"transit-reconciler/internal/provider"
	"transit-reconciler/internal/stations"
	"transit-reconciler/internal/transit"
	"transit-reconciler/internal/trips"
)

type Store interface {
	stations.Store
	trips.Store
	StationByIBNR(ctx context.Context, ibnr int64) (transit.Station, error)
	StationByRil(ctx context.Context, ril string) (transit.Station, error)
	StationsByRilPrefix(ctx context.Context, prefix string) ([]transit.Station, error)
}

type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// Zone is the single timezone the portal speaks.
	Zone     *time.Location
	Messages *messages.Catalog
	Metrics  provider.Metrics
	// Cache holds journey associations. A private LRU is used when nil.
	Cache cache.Store
}

type Client struct {
	http         *provider.HTTPClient
	store        Store
	matcher      *stations.Matcher
	trips        *trips.Normalizer
	associations *trips.Associations
	msgs         *messages.Catalog
	metrics      provider.Metrics
	zone         *time.Location
}

var _ provider.Provider = (*Client)(nil)

func New(store Store, opts Options) *Client {
	zone := opts.Zone
	if zone == nil {
		zone = time.UTC
	}
	assocStore := opts.Cache
	if assocStore == nil {
		assocStore = cache.New(1000)
	}
	return &Client{
		http:         provider.NewHTTPClient(opts.BaseURL, opts.Timeout, opts.UserAgent),
		store:        store,
		matcher:      stations.NewMatcher(store, string(transit.SourceBahnWebAPI)),
		trips:        trips.NewNormalizer(store),
		associations: trips.NewAssociations(assocStore),
		msgs:         opts.Messages,
		metrics:      provider.OrNop(opts.Metrics),
		zone:         zone,
	}
}

func (c *Client) get(ctx context.Context, f provider.Family, path string, q url.Values) (int, []byte, error) {
	start := time.Now()
	status, body, err := c.http.Get(ctx, path, q)
	c.metrics.UpstreamRequest(f, provider.Classify(status, err), time.Since(start))
	return status, body, err
}

func (c *Client) upstream(op string, cause error) error {
	return provider.Upstream(c.msgs, op, messages.GeneralHafas, cause)
}

func (c *Client) GetStations(ctx context.Context, query string, results int) ([]transit.Station, error) {
	if results <= 0 {
		results = provider.DefaultStationResults
	}
	status, body, err := c.get(ctx, provider.FamilyLocations, "/orte", url.Values{
		"suchbegriff": {query},
		"typ":         {"ALL"},
		"limit":       {strconv.Itoa(results)},
	})
	if err != nil {
		return nil, c.upstream("locations", err)
	}
	if !provider.OK(status) {
		log.Printf("bahn orte not ok status=%d body=%.200s", status, body)
		return nil, c.upstream("locations", fmt.Errorf("status %d", status))
	}
	var orte []ort
	if err := json.Unmarshal(body, &orte); err != nil {
		return nil, c.upstream("locations", fmt.Errorf("decode orte: %w", err))
	}
	raws := make([]stations.Raw, 0, len(orte))
	for _, o := range orte {
		raws = append(raws, stations.Raw{
			IBNR: o.ExtID.Int64(), Name: o.Name, Latitude: o.Lat, Longitude: o.Lon, LocationID: o.ID,
		})
	}
	found, err := c.matcher.Upsert(ctx, raws)
	if err != nil {
		return nil, err
	}
	if found == nil {
		found = []transit.Station{}
	}
	return found, nil
}

func (c *Client) GetNearbyStations(context.Context, float64, float64, int) ([]transit.NearbyStation, error) {
	return nil, provider.NotSupported(c.msgs, "nearby")
}

// GetStationByRilIdentifier only consults the local store, the portal has no such lookup.
func (c *Client) GetStationByRilIdentifier(ctx context.Context, ril string) (transit.Station, error) {
	st, err := c.store.StationByRil(ctx, ril)
	if errors.Is(err, db.ErrNotFound) {
		return transit.Station{}, fmt.Errorf("station %s: %w", ril, provider.ErrNotFound)
	}
	return st, err
}

func (c *Client) GetStationsByFuzzyRilIdentifier(ctx context.Context, ril string) ([]transit.Station, error) {
	return provider.FuzzyRil(ctx, c.store, c.msgs, ril, c.GetStationByRilIdentifier)
}
