package model

// Point is a geographic coordinate, latitude first.
// The GeoJSON boundary (lon-first) converts at serialization time, never here.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point is a plausible WGS84 coordinate.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
