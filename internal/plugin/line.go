package plugin

import "github.com/shaunagostinho/roadmap/internal/geo"

// Line identifies a road segment owned by the built-in database or by a
// registered provider. Line values are plain data and are copied freely.
type Line struct {
	ProviderID int `json:"providerId"`
	LineID     int `json:"lineId"`
	Category   int `json:"category"` // cfcc
	Region     int `json:"region"`   // fips
}

// Street identifies a named street owned by a provider.
type Street struct {
	ProviderID int `json:"providerId"`
	StreetID   int `json:"streetId"`
}

// NoStreet is the street id returned when a line has no known street.
const NoStreet = -1

// NewLine builds a line identity.
func NewLine(providerID, lineID, category, region int) Line {
	return Line{ProviderID: providerID, LineID: lineID, Category: category, Region: region}
}

// NewStreet builds a street identity.
func NewStreet(providerID, streetID int) Street {
	return Street{ProviderID: providerID, StreetID: streetID}
}

// IsBuiltin reports whether the line belongs to the built-in database.
func (l Line) IsBuiltin() bool { return l.ProviderID == BuiltinID }

// SameLine reports whether a and b refer to the same segment. The category
// is not part of the comparison; a line keeps its identity when a provider
// reclassifies it.
func SameLine(a, b Line) bool {
	return a.ProviderID == b.ProviderID &&
		a.LineID == b.LineID &&
		a.Region == b.Region
}

// SameLineRef is SameLine for optional values. A nil line is never the same
// as anything, including another nil.
func SameLineRef(a, b *Line) bool {
	if a == nil || b == nil {
		return false
	}
	return SameLine(*a, *b)
}

// SameStreet reports whether a and b refer to the same street.
func SameStreet(a, b Street) bool {
	return a.ProviderID == b.ProviderID && a.StreetID == b.StreetID
}

// SameStreetRef is SameStreet for optional values.
func SameStreetRef(a, b *Street) bool {
	if a == nil || b == nil {
		return false
	}
	return SameStreet(*a, *b)
}

// StreetProperties holds the printable attributes of a line's street.
type StreetProperties struct {
	Address string `json:"address"`
	Street  string `json:"street"`
	City    string `json:"city"`
}

// Neighbour is a line found near a position.
type Neighbour struct {
	Line         Line         `json:"line"`
	Distance     int          `json:"distance"` // meters
	From         geo.Position `json:"from"`
	To           geo.Position `json:"to"`
	Intersection geo.Position `json:"intersection"`
}

// Pen names a drawing style that a provider substitutes for the default.
type Pen string
