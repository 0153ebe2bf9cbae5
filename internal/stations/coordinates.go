package stations

import (
	"regexp"
	"strconv"
)

var coordPattern = regexp.MustCompile(`@X=(-?\d+)@Y=(-?\d+)`)

// ParseCoordinates extracts the micro-degree coordinates embedded in a HAFAS
// location id such as "A=1@O=Druseltal, Kassel@X=9414484@Y=51301106@U=81@".
// ok is false when the id carries no complete pair.
func ParseCoordinates(id string) (lat, lon float64, ok bool) {
	m := coordPattern.FindStringSubmatch(id)
	if m == nil {
		return 0, 0, false
	}
	x, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	y, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return float64(y) / 1e6, float64(x) / 1e6, true
}
