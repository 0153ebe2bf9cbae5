package transit

import "fmt"

// TravelType is the coarse filter callers pass to departure queries.
type TravelType string

const (
	TravelAll      TravelType = ""
	TravelExpress  TravelType = "express"
	TravelRegional TravelType = "regional"
	TravelSuburban TravelType = "suburban"
	TravelBus      TravelType = "bus"
	TravelFerry    TravelType = "ferry"
	TravelSubway   TravelType = "subway"
	TravelTram     TravelType = "tram"
	TravelTaxi     TravelType = "taxi"
)

func ParseTravelType(s string) (TravelType, error) {
	switch t := TravelType(s); t {
	case TravelAll, TravelExpress, TravelRegional, TravelSuburban, TravelBus,
		TravelFerry, TravelSubway, TravelTram, TravelTaxi:
		return t, nil
	}
	return "", fmt.Errorf("unknown travel type %q", s)
}

// HafasTravelType is the product category used on trips and lines.
type HafasTravelType string

const (
	NationalExpress HafasTravelType = "nationalExpress"
	National        HafasTravelType = "national"
	RegionalExp     HafasTravelType = "regionalExp"
	Regional        HafasTravelType = "regional"
	Suburban        HafasTravelType = "suburban"
	Bus             HafasTravelType = "bus"
	Ferry           HafasTravelType = "ferry"
	Subway          HafasTravelType = "subway"
	Tram            HafasTravelType = "tram"
	Taxi            HafasTravelType = "taxi"
)

// HafasTravelTypes lists every product in upstream flag order.
var HafasTravelTypes = []HafasTravelType{
	NationalExpress, National, RegionalExp, Regional, Suburban,
	Bus, Ferry, Subway, Tram, Taxi,
}

// TravelType maps a product onto the filter group that enables it.
func (h HafasTravelType) TravelType() TravelType {
	switch h {
	case NationalExpress, National, RegionalExp:
		return TravelExpress
	case Regional:
		return TravelRegional
	case Suburban:
		return TravelSuburban
	case Bus:
		return TravelBus
	case Ferry:
		return TravelFerry
	case Subway:
		return TravelSubway
	case Tram:
		return TravelTram
	case Taxi:
		return TravelTaxi
	}
	return TravelRegional
}

// Enabled reports whether a product flag is on for the given filter.
func (h HafasTravelType) Enabled(filter TravelType) bool {
	return filter == TravelAll || h.TravelType() == filter
}

type TripSource string

const (
	SourceHafas      TripSource = "hafas"
	SourceBahnWebAPI TripSource = "bahn-web-api"
	SourceWikidata   TripSource = "wikidata"
)
