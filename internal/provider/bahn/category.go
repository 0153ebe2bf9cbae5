package bahn

import "transit-reconciler/internal/transit"

// Category is the product enumeration of the web portal API.
type Category string

const (
	ICE            Category = "ICE"
	ECIC           Category = "EC_IC"
	IR             Category = "IR"
	Regional       Category = "REGIONAL"
	SBahn          Category = "SBAHN"
	Bus            Category = "BUS"
	Schiff         Category = "SCHIFF"
	UBahn          Category = "UBAHN"
	Tram           Category = "TRAM"
	Anrufpflichtig Category = "ANRUFPFLICHTIG"
	Unknown        Category = "UNKNOWN"
)

var categoryProducts = map[Category]transit.HafasTravelType{
	ICE:            transit.NationalExpress,
	ECIC:           transit.National,
	IR:             transit.RegionalExp,
	Regional:       transit.Regional,
	Unknown:        transit.Regional,
	SBahn:          transit.Suburban,
	Bus:            transit.Bus,
	Schiff:         transit.Ferry,
	UBahn:          transit.Subway,
	Tram:           transit.Tram,
	Anrufpflichtig: transit.Taxi,
}

// ParseCategory reports whether s is a known category.
func ParseCategory(s string) (Category, bool) {
	c := Category(s)
	_, ok := categoryProducts[c]
	return c, ok
}

// Product maps c onto the internal product, Regional for anything unknown.
func (c Category) Product() transit.HafasTravelType {
	if p, ok := categoryProducts[c]; ok {
		return p
	}
	return transit.Regional
}

// CategoriesFor lists the categories a departure filter asks for, nil for no filter.
func CategoriesFor(t transit.TravelType) []Category {
	switch t {
	case transit.TravelExpress:
		return []Category{ICE, ECIC}
	case transit.TravelRegional:
		return []Category{IR, Regional}
	case transit.TravelSuburban:
		return []Category{SBahn}
	case transit.TravelBus:
		return []Category{Bus}
	case transit.TravelFerry:
		return []Category{Schiff}
	case transit.TravelSubway:
		return []Category{UBahn}
	case transit.TravelTram:
		return []Category{Tram}
	case transit.TravelTaxi:
		return []Category{Anrufpflichtig}
	}
	return nil
}
