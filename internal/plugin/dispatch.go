package plugin

import (
	"log"

	"github.com/shaunagostinho/roadmap/internal/geo"
)

// Database is the built-in map database. Line ids are local to the region
// most recently passed to ActivateRegion.
type Database interface {
	ActivateRegion(region int) error
	LineDistance(point geo.Position, lineID, category int) (Neighbour, bool)
	LineFrom(lineID int) geo.Position
	LineTo(lineID int) geo.Position
	LineStreet(lineID int) StreetInfo
}

// StreetInfo is what the built-in database knows about a line's street.
type StreetInfo struct {
	StreetID   int
	FullName   string
	Properties StreetProperties
}

// Resolver gives the dispatcher access to registered providers.
// *Registry implements it.
type Resolver interface {
	Lookup(id int) (Provider, bool)
	Providers() []Entry
}

// Reporter receives a diagnostic every time a query names a provider that
// is not registered.
type Reporter interface {
	ProviderMissing(id int, query string)
}

// LogReporter writes provider-missing diagnostics to the standard logger.
type LogReporter struct{}

func (LogReporter) ProviderMissing(id int, query string) {
	log.Printf("[plugin] provider id:%d is missing (%s)", id, query)
}

// Dispatcher routes line and street queries to the built-in database or to
// the provider that owns the identity. Queries never fail the caller: a
// missing provider or capability yields an empty result.
type Dispatcher struct {
	db        Database
	providers Resolver
	reporter  Reporter
}

// NewDispatcher creates a dispatcher. A nil reporter logs diagnostics.
func NewDispatcher(db Database, providers Resolver, reporter Reporter) *Dispatcher {
	if reporter == nil {
		reporter = LogReporter{}
	}
	return &Dispatcher{db: db, providers: providers, reporter: reporter}
}

// provider resolves the owner of a non-builtin identity, reporting when it
// is not registered.
func (d *Dispatcher) provider(id int, query string) Provider {
	if id > BuiltinID && id < MaxProviders {
		if p, ok := d.providers.Lookup(id); ok {
			return p
		}
	}
	d.reporter.ProviderMissing(id, query)
	return nil
}

// ActivateDB makes the line's data current. Built-in failures are returned
// unchanged.
func (d *Dispatcher) ActivateDB(line Line) error {
	if line.IsBuiltin() {
		return d.db.ActivateRegion(line.Region)
	}
	p := d.provider(line.ProviderID, QueryActivateDB)
	if p == nil {
		return ErrProviderMissing
	}
	if a, ok := p.(DBActivator); ok {
		return a.ActivateDB(line)
	}
	return ErrCapabilityAbsent
}

// Distance measures the distance from point to line. The bool result is
// false when there is no match.
func (d *Dispatcher) Distance(point geo.Position, line Line) (Neighbour, bool) {
	if line.IsBuiltin() {
		return d.db.LineDistance(point, line.LineID, line.Category)
	}
	p := d.provider(line.ProviderID, QueryDistance)
	if p == nil {
		return Neighbour{}, false
	}
	if f, ok := p.(DistanceFinder); ok {
		return f.Distance(point, line)
	}
	return Neighbour{}, false
}

// LineFrom returns the first point of line.
func (d *Dispatcher) LineFrom(line Line) geo.Position {
	if line.IsBuiltin() {
		return d.db.LineFrom(line.LineID)
	}
	p := d.provider(line.ProviderID, QueryLineFrom)
	if f, ok := p.(LineFromer); ok {
		return f.LineFrom(line)
	}
	return geo.Position{}
}

// LineTo returns the last point of line.
func (d *Dispatcher) LineTo(line Line) geo.Position {
	if line.IsBuiltin() {
		return d.db.LineTo(line.LineID)
	}
	p := d.provider(line.ProviderID, QueryLineTo)
	if f, ok := p.(LineToer); ok {
		return f.LineTo(line)
	}
	return geo.Position{}
}

// StreetOf returns the street line belongs to. The result always carries
// the line's provider id; when the street is unknown its StreetID is
// NoStreet.
func (d *Dispatcher) StreetOf(line Line) Street {
	if line.IsBuiltin() {
		return NewStreet(BuiltinID, d.db.LineStreet(line.LineID).StreetID)
	}
	p := d.provider(line.ProviderID, QueryStreet)
	if f, ok := p.(StreetFinder); ok {
		street := f.StreetOf(line)
		street.ProviderID = line.ProviderID
		return street
	}
	return NewStreet(line.ProviderID, NoStreet)
}

// StreetFullName returns the printable name of line's street.
func (d *Dispatcher) StreetFullName(line Line) string {
	if line.IsBuiltin() {
		return d.db.LineStreet(line.LineID).FullName
	}
	p := d.provider(line.ProviderID, QueryStreetFullName)
	if f, ok := p.(StreetFullNamer); ok {
		return f.StreetFullName(line)
	}
	return ""
}

// StreetProperties returns address, street and city of line's street.
func (d *Dispatcher) StreetProperties(line Line) StreetProperties {
	if line.IsBuiltin() {
		return d.db.LineStreet(line.LineID).Properties
	}
	p := d.provider(line.ProviderID, QueryStreetProperties)
	if f, ok := p.(StreetPropertiesFinder); ok {
		return f.StreetProperties(line)
	}
	return StreetProperties{}
}

// OverrideLine asks each provider in id order whether it replaces the
// built-in line. The first non-zero answer wins.
func (d *Dispatcher) OverrideLine(lineID, category, region int) int {
	for _, e := range d.providers.Providers() {
		o, ok := e.Provider.(LineOverrider)
		if !ok {
			continue
		}
		if res := o.OverrideLine(lineID, category, region); res != 0 {
			return res
		}
	}
	return 0
}

// OverridePen asks each provider in id order for a replacement pen. The
// first provider that supplies one wins.
func (d *Dispatcher) OverridePen(lineID, category, region, penKind int) (Pen, bool) {
	for _, e := range d.providers.Providers() {
		o, ok := e.Provider.(PenOverrider)
		if !ok {
			continue
		}
		if pen, ok := o.OverridePen(lineID, category, region, penKind); ok {
			return pen, true
		}
	}
	return "", false
}

// ScreenRepaint notifies every provider that listens for repaints.
func (d *Dispatcher) ScreenRepaint(maxPen int) {
	for _, e := range d.providers.Providers() {
		if l, ok := e.Provider.(RepaintListener); ok {
			l.ScreenRepaint(maxPen)
		}
	}
}

// FindConnectedLines concatenates the lines each provider reports at
// crossing, up to max in total.
func (d *Dispatcher) FindConnectedLines(crossing geo.Position, max int) []Line {
	var lines []Line
	for _, e := range d.providers.Providers() {
		remaining := max - len(lines)
		if remaining <= 0 {
			break
		}
		f, ok := e.Provider.(ConnectedLinesFinder)
		if !ok {
			continue
		}
		found := f.FindConnectedLines(crossing, remaining)
		if len(found) > remaining {
			found = found[:remaining]
		}
		lines = append(lines, found...)
	}
	return lines
}

// AdjustLayer notifies every provider that adjusts layers.
func (d *Dispatcher) AdjustLayer(layer, thickness, penCount int) {
	for _, e := range d.providers.Providers() {
		if a, ok := e.Provider.(LayerAdjuster); ok {
			a.AdjustLayer(layer, thickness, penCount)
		}
	}
}

// Closest passes neighbours through every provider that implements
// ClosestFinder, in id order. Each provider receives the previous
// provider's result and its return value replaces it, so the last
// implementing provider decides the outcome.
// TODO: confirm with map owners whether results should accumulate instead.
func (d *Dispatcher) Closest(position geo.Position, categories []int, neighbours []Neighbour, max int) []Neighbour {
	for _, e := range d.providers.Providers() {
		if f, ok := e.Provider.(ClosestFinder); ok {
			neighbours = f.Closest(position, categories, neighbours, max)
		}
	}
	return neighbours
}
