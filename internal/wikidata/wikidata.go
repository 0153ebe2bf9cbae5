// Package wikidata imports and enriches stations from Wikidata entities.
package wikidata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"transit-reconciler/internal/messages"
	"transit-reconciler/internal/provider"
	"transit-reconciler/internal/transit"
)

const (
	propInstanceOf   = "P31"
	propCoordinates  = "P625"
	propIBNR         = "P954"
	propOfficialName = "P1448"
	propRL100        = "P8671"
)

var supportedTypes = map[string]bool{
	"Q55490":     true, // through station
	"Q18543139":  true, // central station
	"Q27996466":  true, // station (operational)
	"Q55488":     true, // railway station
	"Q124817561": true, // operating point
	"Q644371":    true, // international airport
	"Q21836433":  true, // airport
	"Q953806":    true, // bus stop
	"Q2175765":   true, // tram stop
	"Q44782":     true, // port
}

var (
	ErrInvalidID       = errors.New("wikidata: invalid entity id")
	ErrUnsupportedType = errors.New("wikidata: unsupported entity type")
	ErrIBNRInUse       = errors.New("wikidata: ibnr already in use")
	ErrIncomplete      = errors.New("wikidata: entity lacks name or coordinates")
)

// RejectedError carries a localized reason for refusing an entity.
type RejectedError struct {
	Message string
	Err     error
}

func (e *RejectedError) Error() string { return e.Message }

func (e *RejectedError) Unwrap() error { return e.Err }

type Store interface {
	IBNRExists(ctx context.Context, ibnr int64) (bool, error)
	CreateStation(ctx context.Context, st transit.Station) (transit.Station, error)
	SetStationEnrichment(ctx context.Context, id int64, wikidataID, ril string) error
}

type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	Messages  *messages.Catalog
}

type Client struct {
	http  *provider.HTTPClient
	store Store
	msgs  *messages.Catalog
}

func New(store Store, opts Options) *Client {
	return &Client{
		http:  provider.NewHTTPClient(opts.BaseURL, opts.Timeout, opts.UserAgent),
		store: store,
		msgs:  opts.Messages,
	}
}

// Fetch loads entity qid from the entity-data endpoint. A missing entity is
// provider.ErrNotFound.
func (c *Client) Fetch(ctx context.Context, qid string) (*Entity, error) {
	if !strings.HasPrefix(qid, "Q") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, qid)
	}
	status, body, err := c.http.Get(ctx, qid+".json", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", qid, err)
	}
	if !provider.OK(status) {
		log.Printf("wikidata fetch qid=%s status=%d", qid, status)
		return nil, fmt.Errorf("fetch %s: %w", qid, provider.ErrNotFound)
	}
	var doc struct {
		Entities map[string]*Entity `json:"entities"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", qid, err)
	}
	e, ok := doc.Entities[qid]
	if !ok || e == nil {
		return nil, fmt.Errorf("fetch %s: %w", qid, provider.ErrNotFound)
	}
	e.ID = qid
	return e, nil
}

// Import creates a station from entity qid.
func (c *Client) Import(ctx context.Context, qid string) (transit.Station, error) {
	e, err := c.Fetch(ctx, qid)
	if err != nil {
		return transit.Station{}, err
	}
	if !e.Supported() {
		return transit.Station{}, &RejectedError{Message: c.msgs.Get(messages.WikidataType), Err: ErrUnsupportedType}
	}
	name := e.Name()
	lat, lon, ok := e.Coordinates()
	if name == "" || !ok {
		return transit.Station{}, fmt.Errorf("import %s: %w", qid, ErrIncomplete)
	}
	ibnr := e.IBNR()
	if ibnr != 0 {
		exists, err := c.store.IBNRExists(ctx, ibnr)
		if err != nil {
			return transit.Station{}, err
		}
		if exists {
			return transit.Station{}, &RejectedError{Message: c.msgs.Get(messages.WikidataIBNRUsed), Err: ErrIBNRInUse}
		}
	}
	st, err := c.store.CreateStation(ctx, transit.Station{
		IBNR:          ibnr,
		RilIdentifier: e.String(propRL100),
		Name:          name,
		Latitude:      lat,
		Longitude:     lon,
		Source:        string(transit.SourceWikidata),
		WikidataID:    qid,
	})
	if err != nil {
		return transit.Station{}, err
	}
	log.Printf("wikidata imported qid=%s station=%d ibnr=%d", qid, st.ID, ibnr)
	return st, nil
}

// Enrich links station to entity qid. An existing short identifier is kept.
func (c *Client) Enrich(ctx context.Context, station transit.Station, qid string) (transit.Station, error) {
	e, err := c.Fetch(ctx, qid)
	if err != nil {
		return transit.Station{}, err
	}
	ril := e.String(propRL100)
	if err := c.store.SetStationEnrichment(ctx, station.ID, qid, ril); err != nil {
		return transit.Station{}, err
	}
	station.WikidataID = qid
	if station.RilIdentifier == "" {
		station.RilIdentifier = ril
	}
	return station, nil
}
