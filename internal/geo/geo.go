// Package geo provides the bounding-box predicate applied to catalog
// locations. Coordinates are stored as free-form decimal text; parsing is
// best-effort and a location whose coordinates do not parse is excluded
// from spatial results rather than failing the query.
package geo

import "strconv"

// BoundingBox is an inclusive rectangular latitude/longitude range.
type BoundingBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// Valid reports whether the box's bounds are ordered.
func (b BoundingBox) Valid() bool {
	return b.MinLat <= b.MaxLat && b.MinLon <= b.MaxLon
}

// Contains reports whether the textual coordinates fall inside the box.
// Non-numeric coordinates never match.
func (b BoundingBox) Contains(latText, lonText string) bool {
	lat, err := strconv.ParseFloat(latText, 64)
	if err != nil {
		return false
	}
	lon, err := strconv.ParseFloat(lonText, 64)
	if err != nil {
		return false
	}
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}
