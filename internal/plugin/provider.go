package plugin

import "github.com/shaunagostinho/roadmap/internal/geo"

// Provider is an external source of line and street data. Everything a
// provider can do beyond naming itself is optional: the dispatcher checks
// for each capability interface below and falls back to an empty result
// when it is not implemented.
type Provider interface {
	Name() string
}

// Binder is implemented by providers that need to know the id they were
// registered under, typically to stamp it on the lines they produce.
type Binder interface {
	Bind(id int)
}

// DBActivator prepares the provider's data for the line's region.
type DBActivator interface {
	ActivateDB(line Line) error
}

// DistanceFinder measures the distance from a point to a line.
// The bool result is false when the line does not match.
type DistanceFinder interface {
	Distance(point geo.Position, line Line) (Neighbour, bool)
}

type LineFromer interface {
	LineFrom(line Line) geo.Position
}

type LineToer interface {
	LineTo(line Line) geo.Position
}

type StreetFinder interface {
	StreetOf(line Line) Street
}

type StreetFullNamer interface {
	StreetFullName(line Line) string
}

type StreetPropertiesFinder interface {
	StreetProperties(line Line) StreetProperties
}

// LineOverrider may replace a built-in line with one of its own.
// A zero return means no override.
type LineOverrider interface {
	OverrideLine(lineID, category, region int) int
}

// PenOverrider may replace the pen used to draw a built-in line.
type PenOverrider interface {
	OverridePen(lineID, category, region, penKind int) (Pen, bool)
}

// RepaintListener is notified after the screen has been repainted.
type RepaintListener interface {
	ScreenRepaint(maxPen int)
}

// ConnectedLinesFinder returns at most max lines that touch crossing.
type ConnectedLinesFinder interface {
	FindConnectedLines(crossing geo.Position, max int) []Line
}

// LayerAdjuster is notified when a drawing layer changes thickness.
type LayerAdjuster interface {
	AdjustLayer(layer, thickness, penCount int)
}

// ClosestFinder receives the neighbours found so far and returns the
// updated list, which must not exceed max entries.
type ClosestFinder interface {
	Closest(position geo.Position, categories []int, neighbours []Neighbour, max int) []Neighbour
}

// Capabilities lists the optional capabilities p implements.
func Capabilities(p Provider) []string {
	var caps []string
	add := func(ok bool, name string) {
		if ok {
			caps = append(caps, name)
		}
	}
	_, ok := p.(DBActivator)
	add(ok, QueryActivateDB)
	_, ok = p.(DistanceFinder)
	add(ok, QueryDistance)
	_, ok = p.(LineFromer)
	add(ok, QueryLineFrom)
	_, ok = p.(LineToer)
	add(ok, QueryLineTo)
	_, ok = p.(StreetFinder)
	add(ok, QueryStreet)
	_, ok = p.(StreetFullNamer)
	add(ok, QueryStreetFullName)
	_, ok = p.(StreetPropertiesFinder)
	add(ok, QueryStreetProperties)
	_, ok = p.(LineOverrider)
	add(ok, QueryOverrideLine)
	_, ok = p.(PenOverrider)
	add(ok, QueryOverridePen)
	_, ok = p.(RepaintListener)
	add(ok, QueryScreenRepaint)
	_, ok = p.(ConnectedLinesFinder)
	add(ok, QueryConnectedLines)
	_, ok = p.(LayerAdjuster)
	add(ok, QueryAdjustLayer)
	_, ok = p.(ClosestFinder)
	add(ok, QueryClosest)
	return caps
}

// Query names, used in diagnostics.
const (
	QueryActivateDB       = "activate_db"
	QueryDistance         = "get_distance"
	QueryLineFrom         = "line_from"
	QueryLineTo           = "line_to"
	QueryStreet           = "get_street"
	QueryStreetFullName   = "get_street_full_name"
	QueryStreetProperties = "get_street_properties"
	QueryOverrideLine     = "override_line"
	QueryOverridePen      = "override_pen"
	QueryScreenRepaint    = "screen_repaint"
	QueryConnectedLines   = "find_connected_lines"
	QueryAdjustLayer      = "adjust_layer"
	QueryClosest          = "get_closest"
)
