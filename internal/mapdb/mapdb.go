// Package mapdb is the built-in map database: regions of streets and
// lines loaded from a YAML file. Line ids are local to a region, so
// queries resolve against the region selected by ActivateRegion.
package mapdb

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/shaunagostinho/roadmap/internal/geo"
	"github.com/shaunagostinho/roadmap/internal/plugin"
)

// ErrRegionUnknown is returned when activating a region that is not loaded.
var ErrRegionUnknown = errors.New("mapdb: region not available")

// File is the on-disk layout of the map database.
type File struct {
	Regions []RegionData `yaml:"regions"`
}

type RegionData struct {
	ID      int          `yaml:"id"`
	Name    string       `yaml:"name"`
	Streets []StreetData `yaml:"streets"`
	Lines   []LineData   `yaml:"lines"`
}

type StreetData struct {
	ID      int    `yaml:"id"`
	Prefix  string `yaml:"prefix"` // e.g. "N"
	Name    string `yaml:"name"`
	Type    string `yaml:"type"` // e.g. "St", "Ave"
	Suffix  string `yaml:"suffix"`
	City    string `yaml:"city"`
	Address string `yaml:"address"` // address range, e.g. "100-198"
}

type LineData struct {
	ID       int          `yaml:"id"`
	Category int          `yaml:"category"`
	Street   int          `yaml:"street"`
	From     geo.Position `yaml:"from"`
	To       geo.Position `yaml:"to"`
}

type region struct {
	id      int
	name    string
	streets map[int]StreetData
	lines   map[int]LineData
}

// DB is an in-memory built-in database.
type DB struct {
	mu      sync.RWMutex
	regions map[int]*region
	active  *region
}

// Empty returns a database with no regions. Every activation fails.
func Empty() *DB {
	return &DB{regions: make(map[int]*region)}
}

// Load reads a database from a YAML file.
func Load(path string) (*DB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mapdb: open %s: %w", path, err)
	}
	defer f.Close()

	db, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("mapdb: %s: %w", path, err)
	}
	log.Printf("[mapdb] loaded %d regions from %s", len(db.regions), path)
	return db, nil
}

// Read decodes a database from r.
func Read(r io.Reader) (*DB, error) {
	var file File
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return New(file)
}

// New builds a database from decoded data. Duplicate region, street or
// line ids are rejected.
func New(file File) (*DB, error) {
	db := Empty()
	for _, rd := range file.Regions {
		if _, dup := db.regions[rd.ID]; dup {
			return nil, fmt.Errorf("duplicate region %d", rd.ID)
		}
		reg := &region{
			id:      rd.ID,
			name:    rd.Name,
			streets: make(map[int]StreetData, len(rd.Streets)),
			lines:   make(map[int]LineData, len(rd.Lines)),
		}
		for _, s := range rd.Streets {
			if _, dup := reg.streets[s.ID]; dup {
				return nil, fmt.Errorf("region %d: duplicate street %d", rd.ID, s.ID)
			}
			reg.streets[s.ID] = s
		}
		for _, l := range rd.Lines {
			if _, dup := reg.lines[l.ID]; dup {
				return nil, fmt.Errorf("region %d: duplicate line %d", rd.ID, l.ID)
			}
			reg.lines[l.ID] = l
		}
		db.regions[rd.ID] = reg
	}
	return db, nil
}

// ActivateRegion makes region the target of subsequent line queries.
func (db *DB) ActivateRegion(id int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	reg, ok := db.regions[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrRegionUnknown, id)
	}
	db.active = reg
	return nil
}

func (db *DB) line(id int) (LineData, *region, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if db.active == nil {
		return LineData{}, nil, false
	}
	l, ok := db.active.lines[id]
	return l, db.active, ok
}

// LineFrom returns the first point of a line in the active region.
func (db *DB) LineFrom(lineID int) geo.Position {
	l, _, _ := db.line(lineID)
	return l.From
}

// LineTo returns the last point of a line in the active region.
func (db *DB) LineTo(lineID int) geo.Position {
	l, _, _ := db.line(lineID)
	return l.To
}

// LineDistance measures the distance from point to a line in the active
// region. Lines of a different category do not match.
func (db *DB) LineDistance(point geo.Position, lineID, category int) (plugin.Neighbour, bool) {
	l, reg, ok := db.line(lineID)
	if !ok || l.Category != category {
		return plugin.Neighbour{}, false
	}
	dist, at := geo.ClosestOnSegment(point, l.From, l.To)
	return plugin.Neighbour{
		Line:         plugin.NewLine(plugin.BuiltinID, l.ID, l.Category, reg.id),
		Distance:     dist,
		From:         l.From,
		To:           l.To,
		Intersection: at,
	}, true
}

// LineStreet returns the street of a line in the active region.
func (db *DB) LineStreet(lineID int) plugin.StreetInfo {
	l, reg, ok := db.line(lineID)
	if !ok {
		return plugin.StreetInfo{StreetID: plugin.NoStreet}
	}
	s, ok := reg.streets[l.Street]
	if !ok {
		return plugin.StreetInfo{StreetID: plugin.NoStreet}
	}
	return plugin.StreetInfo{
		StreetID: s.ID,
		FullName: FullName(s),
		Properties: plugin.StreetProperties{
			Address: s.Address,
			Street:  StreetName(s),
			City:    s.City,
		},
	}
}

// Regions returns the number of loaded regions.
func (db *DB) Regions() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.regions)
}

// StreetName joins prefix, name, type and suffix, skipping empty parts.
func StreetName(s StreetData) string {
	return joinNonEmpty(" ", s.Prefix, s.Name, s.Type, s.Suffix)
}

// FullName is the street name followed by its city.
func FullName(s StreetData) string {
	return joinNonEmpty(", ", StreetName(s), s.City)
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
