package geo

import "math"

// Position is a point in millionths of a degree.
type Position struct {
	Longitude int `yaml:"lon" json:"lon"`
	Latitude  int `yaml:"lat" json:"lat"`
}

const earthRadiusM = 6371000.0

// FromDegrees converts decimal degrees to a Position.
func FromDegrees(lat, lon float64) Position {
	return Position{
		Longitude: int(math.Round(lon * 1e6)),
		Latitude:  int(math.Round(lat * 1e6)),
	}
}

// Degrees returns the position as decimal degrees (lat, lon).
func (p Position) Degrees() (float64, float64) {
	return float64(p.Latitude) / 1e6, float64(p.Longitude) / 1e6
}

// IsZero reports whether both coordinates are zero.
func (p Position) IsZero() bool {
	return p.Longitude == 0 && p.Latitude == 0
}

// DistanceMeters calculates the great-circle distance between two positions.
func DistanceMeters(a, b Position) float64 {
	lat1, lon1 := a.Degrees()
	lat2, lon2 := b.Degrees()
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}

// ClosestOnSegment projects p onto the segment from-to and returns the
// distance in meters to the projected point along with the point itself.
// The projection is done on a local equirectangular plane, which is
// accurate enough for street-length segments.
func ClosestOnSegment(p, from, to Position) (int, Position) {
	lat0 := float64(p.Latitude) / 1e6 * math.Pi / 180
	scale := math.Cos(lat0)

	// Work in microdegree units with longitude scaled to latitude.
	ax := float64(from.Longitude) * scale
	ay := float64(from.Latitude)
	bx := float64(to.Longitude) * scale
	by := float64(to.Latitude)
	px := float64(p.Longitude) * scale
	py := float64(p.Latitude)

	dx, dy := bx-ax, by-ay
	t := 0.0
	if l2 := dx*dx + dy*dy; l2 > 0 {
		t = ((px-ax)*dx + (py-ay)*dy) / l2
		t = math.Max(0, math.Min(1, t))
	}

	at := Position{
		Longitude: from.Longitude + int(math.Round(float64(to.Longitude-from.Longitude)*t)),
		Latitude:  from.Latitude + int(math.Round(float64(to.Latitude-from.Latitude)*t)),
	}
	return int(math.Round(DistanceMeters(p, at))), at
}
