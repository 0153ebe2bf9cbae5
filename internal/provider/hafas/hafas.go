// Package hafas adapts the structured db.transport.rest API.
package hafas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
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
	StationByRil(ctx context.Context, ril string) (transit.Station, error)
	StationsByRilPrefix(ctx context.Context, prefix string) ([]transit.Station, error)
	SetStationTimeOffset(ctx context.Context, id int64, hours int) error
	SetStationShiftTime(ctx context.Context, id int64, shift bool) error
}

type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// Zone is the reference timezone departure requests are expressed in.
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
		matcher:      stations.NewMatcher(store, string(transit.SourceHafas)),
		trips:        trips.NewNormalizer(store),
		associations: trips.NewAssociations(assocStore),
		msgs:         opts.Messages,
		metrics:      provider.OrNop(opts.Metrics),
		zone:         zone,
	}
}

// get issues one upstream request and reports its outcome under f.
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
	status, body, err := c.get(ctx, provider.FamilyLocations, "/locations", url.Values{
		"query":     {query},
		"fuzzy":     {"true"},
		"stops":     {"true"},
		"addresses": {"false"},
		"poi":       {"false"},
		"results":   {strconv.Itoa(results)},
	})
	if err != nil {
		return nil, c.upstream("locations", err)
	}
	if !provider.OK(status) {
		log.Printf("hafas locations not ok status=%d body=%.200s", status, body)
		return []transit.Station{}, nil
	}
	var stops []stop
	if err := json.Unmarshal(body, &stops); err != nil {
		return nil, c.upstream("locations", fmt.Errorf("decode locations: %w", err))
	}
	raws := make([]stations.Raw, 0, len(stops))
	for _, s := range stops {
		raws = append(raws, s.raw())
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

func (c *Client) GetNearbyStations(ctx context.Context, lat, lon float64, results int) ([]transit.NearbyStation, error) {
	if results <= 0 {
		results = provider.DefaultNearbyResults
	}
	status, body, err := c.get(ctx, provider.FamilyNearby, "/stops/nearby", url.Values{
		"latitude":  {strconv.FormatFloat(lat, 'f', -1, 64)},
		"longitude": {strconv.FormatFloat(lon, 'f', -1, 64)},
		"results":   {strconv.Itoa(results)},
	})
	if err != nil {
		return nil, c.upstream("nearby", err)
	}
	if !provider.OK(status) {
		log.Printf("hafas nearby not ok status=%d body=%.200s", status, body)
		return nil, c.upstream("nearby", fmt.Errorf("status %d", status))
	}
	var stops []stop
	if err := json.Unmarshal(body, &stops); err != nil {
		return nil, c.upstream("nearby", fmt.Errorf("decode nearby: %w", err))
	}
	raws := make([]stations.Raw, 0, len(stops))
	distance := make(map[int64]int, len(stops))
	for _, s := range stops {
		raws = append(raws, s.raw())
		if s.Distance != nil {
			distance[s.ID.Int64()] = *s.Distance
		}
	}
	found, err := c.matcher.Upsert(ctx, raws)
	if err != nil {
		return nil, err
	}
	out := make([]transit.NearbyStation, 0, len(found))
	for _, st := range found {
		out = append(out, transit.NearbyStation{Station: st, Distance: distance[st.IBNR]})
	}
	return out, nil
}

// GetStationByRilIdentifier checks the local store before asking upstream.
func (c *Client) GetStationByRilIdentifier(ctx context.Context, ril string) (transit.Station, error) {
	st, err := c.store.StationByRil(ctx, ril)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return transit.Station{}, err
	}

	start := time.Now()
	status, body, err := c.http.Get(ctx, "/stations/"+url.PathEscape(ril), nil)
	outcome := provider.Classify(status, err)
	trimmed := strings.TrimSpace(string(body))
	if outcome == provider.OutcomeSuccess && (trimmed == "" || trimmed == "[]" || trimmed == "null") {
		outcome = provider.OutcomeNotOK
	}
	c.metrics.UpstreamRequest(provider.FamilyStations, outcome, time.Since(start))

	switch outcome {
	case provider.OutcomeSuccess:
	case provider.OutcomeFailure:
		log.Printf("hafas station ril=%s: %v", ril, err)
		return transit.Station{}, c.upstream("stations", err)
	default:
		return transit.Station{}, fmt.Errorf("station %s: %w", ril, provider.ErrNotFound)
	}

	var s stop
	if err := json.Unmarshal(body, &s); err != nil {
		return transit.Station{}, c.upstream("stations", fmt.Errorf("decode station: %w", err))
	}
	if s.ID.Int64() == 0 {
		return transit.Station{}, fmt.Errorf("station %s: %w", ril, provider.ErrNotFound)
	}
	return c.matcher.UpsertStop(ctx, s.raw())
}

func (c *Client) GetStationsByFuzzyRilIdentifier(ctx context.Context, ril string) ([]transit.Station, error) {
	return provider.FuzzyRil(ctx, c.store, c.msgs, ril, c.GetStationByRilIdentifier)
}
