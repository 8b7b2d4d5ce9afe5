// Package overlay implements an external map provider backed by a YAML
// document. An overlay can add lines and streets of its own and can
// override how built-in lines are chosen and drawn.
package overlay

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/roadmap/internal/geo"
	"github.com/shaunagostinho/roadmap/internal/plugin"
)

// Document is the YAML layout of an overlay.
type Document struct {
	Name      string         `yaml:"name"`
	Lines     []LineData     `yaml:"lines"`
	Streets   []StreetData   `yaml:"streets"`
	Overrides []OverrideData `yaml:"overrides"`
}

type LineData struct {
	ID       int          `yaml:"id"`
	Category int          `yaml:"category"`
	Region   int          `yaml:"region"`
	Street   int          `yaml:"street"`
	From     geo.Position `yaml:"from"`
	To       geo.Position `yaml:"to"`
}

type StreetData struct {
	ID       int    `yaml:"id"`
	Name     string `yaml:"name"`
	FullName string `yaml:"full_name"`
	City     string `yaml:"city"`
	Address  string `yaml:"address"`
}

// OverrideData replaces or restyles a built-in line. A zero Category
// matches any category.
type OverrideData struct {
	Line        int            `yaml:"line"`
	Category    int            `yaml:"category"`
	Region      int            `yaml:"region"`
	ReplaceWith int            `yaml:"replace_with"`
	Pens        map[int]string `yaml:"pens"` // pen kind -> pen name
}

type lineKey struct {
	id     int
	region int
}

// Provider serves an overlay document through the plugin capabilities.
type Provider struct {
	name      string
	lines     map[lineKey]LineData
	order     []lineKey
	streets   map[int]StreetData
	overrides []OverrideData

	mu         sync.Mutex
	id         int
	repaints   int
	lastMaxPen int
	layers     map[int]int
}

// Read decodes an overlay from r. The name argument is used when the
// document does not name itself.
func Read(r io.Reader, name string) (*Provider, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("overlay: decode: %w", err)
	}
	if doc.Name == "" {
		doc.Name = name
	}
	return New(doc)
}

// New builds a provider from a decoded document.
func New(doc Document) (*Provider, error) {
	p := &Provider{
		name:      doc.Name,
		lines:     make(map[lineKey]LineData, len(doc.Lines)),
		streets:   make(map[int]StreetData, len(doc.Streets)),
		overrides: doc.Overrides,
		layers:    make(map[int]int),
	}
	for _, l := range doc.Lines {
		k := lineKey{id: l.ID, region: l.Region}
		if _, dup := p.lines[k]; dup {
			return nil, fmt.Errorf("overlay %s: duplicate line %d in region %d", doc.Name, l.ID, l.Region)
		}
		p.lines[k] = l
		p.order = append(p.order, k)
	}
	for _, s := range doc.Streets {
		p.streets[s.ID] = s
	}
	return p, nil
}

func (p *Provider) Name() string { return p.name }

// Bind records the provider id assigned at registration.
func (p *Provider) Bind(id int) {
	p.mu.Lock()
	p.id = id
	p.mu.Unlock()
}

// ID returns the id the provider was registered under, or 0.
func (p *Provider) ID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

func (p *Provider) lookup(line plugin.Line) (LineData, bool) {
	l, ok := p.lines[lineKey{id: line.LineID, region: line.Region}]
	return l, ok
}

func (p *Provider) identity(l LineData) plugin.Line {
	return plugin.NewLine(p.ID(), l.ID, l.Category, l.Region)
}

// ActivateDB succeeds when the overlay has data for the line's region.
func (p *Provider) ActivateDB(line plugin.Line) error {
	for k := range p.lines {
		if k.region == line.Region {
			return nil
		}
	}
	return fmt.Errorf("overlay %s: no data for region %d", p.name, line.Region)
}

func (p *Provider) Distance(point geo.Position, line plugin.Line) (plugin.Neighbour, bool) {
	l, ok := p.lookup(line)
	if !ok {
		return plugin.Neighbour{}, false
	}
	return p.neighbour(point, l), true
}

func (p *Provider) neighbour(point geo.Position, l LineData) plugin.Neighbour {
	dist, at := geo.ClosestOnSegment(point, l.From, l.To)
	return plugin.Neighbour{
		Line:         p.identity(l),
		Distance:     dist,
		From:         l.From,
		To:           l.To,
		Intersection: at,
	}
}

func (p *Provider) LineFrom(line plugin.Line) geo.Position {
	l, _ := p.lookup(line)
	return l.From
}

func (p *Provider) LineTo(line plugin.Line) geo.Position {
	l, _ := p.lookup(line)
	return l.To
}

func (p *Provider) street(line plugin.Line) (StreetData, bool) {
	l, ok := p.lookup(line)
	if !ok {
		return StreetData{}, false
	}
	s, ok := p.streets[l.Street]
	return s, ok
}

func (p *Provider) StreetOf(line plugin.Line) plugin.Street {
	s, ok := p.street(line)
	if !ok {
		return plugin.NewStreet(p.ID(), plugin.NoStreet)
	}
	return plugin.NewStreet(p.ID(), s.ID)
}

func (p *Provider) StreetFullName(line plugin.Line) string {
	s, ok := p.street(line)
	if !ok {
		return ""
	}
	if s.FullName != "" {
		return s.FullName
	}
	if s.City == "" {
		return s.Name
	}
	return s.Name + ", " + s.City
}

func (p *Provider) StreetProperties(line plugin.Line) plugin.StreetProperties {
	s, _ := p.street(line)
	return plugin.StreetProperties{Address: s.Address, Street: s.Name, City: s.City}
}

func (o OverrideData) matches(lineID, category, region int) bool {
	return o.Line == lineID && o.Region == region &&
		(o.Category == 0 || o.Category == category)
}

func (p *Provider) OverrideLine(lineID, category, region int) int {
	for _, o := range p.overrides {
		if o.matches(lineID, category, region) && o.ReplaceWith != 0 {
			return o.ReplaceWith
		}
	}
	return 0
}

func (p *Provider) OverridePen(lineID, category, region, penKind int) (plugin.Pen, bool) {
	for _, o := range p.overrides {
		if !o.matches(lineID, category, region) {
			continue
		}
		if pen, ok := o.Pens[penKind]; ok && pen != "" {
			return plugin.Pen(pen), true
		}
	}
	return "", false
}

func (p *Provider) ScreenRepaint(maxPen int) {
	p.mu.Lock()
	p.repaints++
	p.lastMaxPen = maxPen
	p.mu.Unlock()
}

func (p *Provider) AdjustLayer(layer, thickness, penCount int) {
	p.mu.Lock()
	p.layers[layer] = thickness
	p.mu.Unlock()
	log.Printf("[overlay] %s: layer %d thickness %d (%d pens)", p.name, layer, thickness, penCount)
}

// Repaints returns how many repaints were seen and the last max pen.
func (p *Provider) Repaints() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.repaints, p.lastMaxPen
}

// LayerThickness returns the last thickness reported for layer.
func (p *Provider) LayerThickness(layer int) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.layers[layer]
	return t, ok
}

// FindConnectedLines returns overlay lines that start or end at crossing,
// in document order.
func (p *Provider) FindConnectedLines(crossing geo.Position, max int) []plugin.Line {
	var found []plugin.Line
	for _, k := range p.order {
		if len(found) >= max {
			break
		}
		l := p.lines[k]
		if l.From == crossing || l.To == crossing {
			found = append(found, p.identity(l))
		}
	}
	return found
}

// Closest merges the overlay lines in the requested categories into
// neighbours and keeps the max nearest.
func (p *Provider) Closest(position geo.Position, categories []int, neighbours []plugin.Neighbour, max int) []plugin.Neighbour {
	if max <= 0 {
		return neighbours
	}
	merged := append([]plugin.Neighbour(nil), neighbours...)
	for _, k := range p.order {
		l := p.lines[k]
		if !inCategories(l.Category, categories) {
			continue
		}
		merged = append(merged, p.neighbour(position, l))
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Distance < merged[j].Distance
	})
	if len(merged) > max {
		merged = merged[:max]
	}
	return merged
}

func inCategories(category int, categories []int) bool {
	if len(categories) == 0 {
		return true
	}
	for _, c := range categories {
		if c == category {
			return true
		}
	}
	return false
}
