package core

import (
	"math"

	"github.com/citypulse/dispatch-twin/model"
)

// EarthRadiusM is the mean Earth radius used for all great-circle
// calculations in the engine (metres).
const EarthRadiusM = 6371000.0

// Haversine returns the great-circle distance between two points in metres.
func Haversine(a, b model.Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	return 2 * EarthRadiusM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// PolylineLength sums the great-circle distances between consecutive points.
func PolylineLength(coords []model.Point) float64 {
	total := 0.0
	for i := 1; i < len(coords); i++ {
		total += Haversine(coords[i-1], coords[i])
	}
	return total
}

// cumulativeLengths returns, for each point, the polyline length up to it.
// cumulativeLengths(c)[0] is always 0.
func cumulativeLengths(coords []model.Point) []float64 {
	cum := make([]float64, len(coords))
	for i := 1; i < len(coords); i++ {
		cum[i] = cum[i-1] + Haversine(coords[i-1], coords[i])
	}
	return cum
}

// PointAlongPolyline interpolates the coordinate at the given distance from
// the start of the polyline. Distances outside [0, length] clamp to the
// nearest endpoint. Interpolation follows the polyline's segments, not the
// chord between its endpoints, so curved roads are not corner-cut.
func PointAlongPolyline(coords []model.Point, distM float64) model.Point {
	if len(coords) == 0 {
		return model.Point{}
	}
	if len(coords) == 1 || distM <= 0 {
		return coords[0]
	}

	remaining := distM
	for i := 1; i < len(coords); i++ {
		seg := Haversine(coords[i-1], coords[i])
		if remaining <= seg {
			if seg == 0 {
				return coords[i]
			}
			f := remaining / seg
			return model.Point{
				Lat: coords[i-1].Lat + (coords[i].Lat-coords[i-1].Lat)*f,
				Lng: coords[i-1].Lng + (coords[i].Lng-coords[i-1].Lng)*f,
			}
		}
		remaining -= seg
	}
	return coords[len(coords)-1]
}
