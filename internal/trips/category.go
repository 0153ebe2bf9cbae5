package trips

import (
	"regexp"
	"strconv"
	"time"

	"transit-reconciler/internal/cache"
	"transit-reconciler/internal/transit"
)

var journeyNumberPattern = regexp.MustCompile(`#ZE#(\d+)`)

// ExtractJourneyNumber pulls the run number out of an opaque journey id.
func ExtractJourneyNumber(journeyID string) (int64, bool) {
	m := journeyNumberPattern.FindStringSubmatch(journeyID)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ResolveCategory returns the first annotated stop category, else the
// association remembered from a departure board, else Regional.
func ResolveCategory(stopCategories []transit.HafasTravelType, assoc *Association) transit.HafasTravelType {
	for _, c := range stopCategories {
		if c != "" {
			return c
		}
	}
	if assoc != nil && assoc.Category != "" {
		return assoc.Category
	}
	return transit.Regional
}

// Association is what a departure board knew about a journey that the
// journey detail endpoint does not repeat.
type Association struct {
	Category transit.HafasTravelType
	LineName string
}

const AssociationTTL = 30 * time.Minute

type Associations struct {
	store cache.Store
}

func NewAssociations(store cache.Store) *Associations {
	return &Associations{store: store}
}

func associationKey(journeyID string) string { return "_JourneyAssociation_" + journeyID }

// Remember keeps the first association seen for journeyID.
func (a *Associations) Remember(journeyID string, as Association) {
	a.store.Add(associationKey(journeyID), as, AssociationTTL)
}

func (a *Associations) Lookup(journeyID string) (*Association, bool) {
	v, ok := a.store.Get(associationKey(journeyID))
	if !ok {
		return nil, false
	}
	as, ok := v.(Association)
	if !ok {
		return nil, false
	}
	return &as, true
}
