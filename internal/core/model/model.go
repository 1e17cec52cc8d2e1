// Package model defines core domain types shared across the service.
package model

import (
	"encoding/json"
	"fmt"
)

// RegionID identifies one geographic region, e.g. a census GEOID. Ordering is
// plain string ordering.
type RegionID string

func (r RegionID) String() string { return string(r) }

// Pair is one ordered (region, neighbor) adjacency record.
type Pair struct {
	Region   RegionID
	Neighbor RegionID
}

type BBox struct {
	X1, Y1 float64
	X2, Y2 float64
}

// String representation in minx,miny,maxx,maxy order
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", b.X1, b.Y1, b.X2, b.Y2)
}

// MarshalJSON encodes the box as a GeoJSON-style [minx, miny, maxx, maxy] array.
func (b BBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.X1, b.Y1, b.X2, b.Y2})
}
