// Package polyline models trip geometry as GeoJSON and assigns stopovers to
// points along it.
package polyline

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"transit-reconciler/internal/geo"
	"transit-reconciler/internal/transit"
)

type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

type Feature struct {
	Type       string         `json:"type"`
	Geometry   *Geometry      `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// Geometry is a GeoJSON point, Coordinates is [lon, lat].
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Point is one vertex of an upstream path.
type Point struct {
	Lat, Lon float64
}

// FromPoints builds an anonymous feature collection in path order.
func FromPoints(points []Point) *FeatureCollection {
	fc := &FeatureCollection{Type: "FeatureCollection", Features: make([]Feature, 0, len(points))}
	for _, p := range points {
		fc.Features = append(fc.Features, Feature{
			Type:       "Feature",
			Geometry:   &Geometry{Type: "Point", Coordinates: []float64{p.Lon, p.Lat}},
			Properties: map[string]any{},
		})
	}
	return fc
}

func (f Feature) point() (lat, lon float64, ok bool) {
	if f.Geometry == nil || len(f.Geometry.Coordinates) < 2 {
		return 0, 0, false
	}
	return f.Geometry.Coordinates[1], f.Geometry.Coordinates[0], true
}

// MatchStops annotates, for each station in trip order, the nearest feature
// after the previously matched one with the station's id and name. It returns
// the matched feature index per station, -1 once the path is exhausted.
// The cursor only moves forward, so a station visited twice on a ring line
// claims two different points.
func MatchStops(fc *FeatureCollection, stops []transit.Station) []int {
	matched := make([]int, len(stops))
	cursor := -1
	for i, st := range stops {
		best := -1
		bestDist := 0.0
		for k := cursor + 1; k < len(fc.Features); k++ {
			lat, lon, ok := fc.Features[k].point()
			if !ok {
				continue
			}
			d := geo.Distance(lat, lon, st.Latitude, st.Longitude)
			if best == -1 || d < bestDist {
				best, bestDist = k, d
			}
		}
		matched[i] = best
		if best == -1 {
			continue
		}
		fc.Features[best].Properties = map[string]any{"id": st.IBNR, "name": st.Name}
		cursor = best
	}
	return matched
}

// Hash is the dedup key of a serialized geometry.
func Hash(payload []byte) string {
	sum := md5.Sum(payload)
	return hex.EncodeToString(sum[:])
}

type Store interface {
	InsertPolyline(ctx context.Context, hash, payload, source string, parentID *int64) (int64, error)
}

// Save stores fc once per content hash and returns its id.
func Save(ctx context.Context, store Store, fc *FeatureCollection, source string) (int64, error) {
	payload, err := json.Marshal(fc)
	if err != nil {
		return 0, fmt.Errorf("marshal polyline: %w", err)
	}
	return SaveRaw(ctx, store, payload, source)
}

// SaveRaw stores an already serialized geometry as-is.
func SaveRaw(ctx context.Context, store Store, payload []byte, source string) (int64, error) {
	return store.InsertPolyline(ctx, Hash(payload), string(payload), source, nil)
}
