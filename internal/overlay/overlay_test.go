package overlay

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/roadmap/internal/geo"
	"github.com/shaunagostinho/roadmap/internal/plugin"
)

const traffic = `
name: traffic
lines:
  - id: 1
    category: 4
    region: 100
    street: 10
    from: {lon: 0, lat: 0}
    to: {lon: 0, lat: 10000}
  - id: 2
    category: 5
    region: 100
    street: 11
    from: {lon: 0, lat: 10000}
    to: {lon: 10000, lat: 10000}
  - id: 3
    category: 4
    region: 100
    from: {lon: 20000, lat: 0}
    to: {lon: 0, lat: 10000}
streets:
  - id: 10
    name: Bypass Rd
    city: Springfield
    address: 1-99
  - id: 11
    name: Ring Rd
    full_name: Ring Road (closed)
overrides:
  - line: 7
    region: 100
    replace_with: 2
    pens:
      1: traffic-red
  - line: 8
    category: 3
    region: 100
    pens:
      0: traffic-amber
`

func load(t *testing.T) *Provider {
	t.Helper()
	p, err := Read(strings.NewReader(traffic), "fallback")
	require.NoError(t, err)
	return p
}

func TestReadNamesProvider(t *testing.T) {
	assert.Equal(t, "traffic", load(t).Name())

	p, err := Read(strings.NewReader("lines: []"), "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", p.Name())

	_, err = Read(strings.NewReader("lines: [{id: 1}, {id: 1}]"), "dup")
	assert.Error(t, err)

	_, err = Read(strings.NewReader("lines: {"), "bad")
	assert.Error(t, err)
}

func TestGeometryAndStreets(t *testing.T) {
	p := load(t)
	p.Bind(3)

	line := plugin.NewLine(3, 1, 4, 100)
	assert.Equal(t, geo.Position{}, p.LineFrom(line))
	assert.Equal(t, geo.Position{Longitude: 0, Latitude: 10000}, p.LineTo(line))
	assert.Equal(t, plugin.NewStreet(3, 10), p.StreetOf(line))
	assert.Equal(t, "Bypass Rd, Springfield", p.StreetFullName(line))
	assert.Equal(t, plugin.StreetProperties{Address: "1-99", Street: "Bypass Rd", City: "Springfield"}, p.StreetProperties(line))

	ring := plugin.NewLine(3, 2, 5, 100)
	assert.Equal(t, "Ring Road (closed)", p.StreetFullName(ring))

	// Line 3 has no street; unknown region is unknown line.
	assert.Equal(t, plugin.NewStreet(3, plugin.NoStreet), p.StreetOf(plugin.NewLine(3, 3, 4, 100)))
	assert.Equal(t, "", p.StreetFullName(plugin.NewLine(3, 1, 4, 101)))
}

func TestActivateDB(t *testing.T) {
	p := load(t)
	assert.NoError(t, p.ActivateDB(plugin.NewLine(1, 1, 4, 100)))
	assert.Error(t, p.ActivateDB(plugin.NewLine(1, 1, 4, 101)))
}

func TestDistance(t *testing.T) {
	p := load(t)
	p.Bind(2)

	n, ok := p.Distance(geo.Position{Longitude: 1000, Latitude: 5000}, plugin.NewLine(2, 1, 4, 100))
	require.True(t, ok)
	assert.Equal(t, plugin.NewLine(2, 1, 4, 100), n.Line)
	assert.Equal(t, geo.Position{Longitude: 0, Latitude: 5000}, n.Intersection)

	_, ok = p.Distance(geo.Position{}, plugin.NewLine(2, 9, 4, 100))
	assert.False(t, ok)
}

func TestOverrides(t *testing.T) {
	p := load(t)

	assert.Equal(t, 2, p.OverrideLine(7, 2, 100))
	assert.Equal(t, 0, p.OverrideLine(7, 2, 101))
	assert.Equal(t, 0, p.OverrideLine(8, 3, 100), "pen-only override")

	pen, ok := p.OverridePen(7, 9, 100, 1)
	assert.True(t, ok)
	assert.Equal(t, plugin.Pen("traffic-red"), pen)

	_, ok = p.OverridePen(7, 9, 100, 0)
	assert.False(t, ok)

	pen, ok = p.OverridePen(8, 3, 100, 0)
	assert.True(t, ok)
	assert.Equal(t, plugin.Pen("traffic-amber"), pen)

	_, ok = p.OverridePen(8, 4, 100, 0)
	assert.False(t, ok, "category must match")
}

func TestNotifications(t *testing.T) {
	p := load(t)
	p.ScreenRepaint(3)
	p.ScreenRepaint(5)
	n, last := p.Repaints()
	assert.Equal(t, 2, n)
	assert.Equal(t, 5, last)

	p.AdjustLayer(2, 4, 1)
	th, ok := p.LayerThickness(2)
	assert.True(t, ok)
	assert.Equal(t, 4, th)
	_, ok = p.LayerThickness(9)
	assert.False(t, ok)
}

func TestFindConnectedLines(t *testing.T) {
	p := load(t)
	p.Bind(4)

	crossing := geo.Position{Longitude: 0, Latitude: 10000}
	got := p.FindConnectedLines(crossing, 10)
	assert.Equal(t, []plugin.Line{
		plugin.NewLine(4, 1, 4, 100),
		plugin.NewLine(4, 2, 5, 100),
		plugin.NewLine(4, 3, 4, 100),
	}, got)

	assert.Len(t, p.FindConnectedLines(crossing, 2), 2)
	assert.Empty(t, p.FindConnectedLines(geo.Position{Longitude: 1, Latitude: 1}, 10))
}

func TestClosest(t *testing.T) {
	p := load(t)
	p.Bind(1)

	seed := []plugin.Neighbour{{Distance: 0}}
	got := p.Closest(geo.Position{Longitude: 0, Latitude: 2000}, []int{4}, seed, 2)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Distance)
	assert.Equal(t, plugin.NewLine(1, 1, 4, 100), got[1].Line)

	all := p.Closest(geo.Position{}, nil, nil, 10)
	assert.Len(t, all, 3)

	assert.Equal(t, seed, p.Closest(geo.Position{}, nil, seed, 0))
}

func TestThroughDispatcher(t *testing.T) {
	reg := plugin.NewRegistry()
	p := load(t)
	id, err := reg.Register(p)
	require.NoError(t, err)
	assert.Equal(t, id, p.ID())

	d := plugin.NewDispatcher(nil, reg, nil)
	line := plugin.NewLine(id, 1, 4, 100)
	assert.Equal(t, "Bypass Rd, Springfield", d.StreetFullName(line))
	assert.Equal(t, 2, d.OverrideLine(7, 2, 100))
	assert.Len(t, d.FindConnectedLines(geo.Position{Longitude: 0, Latitude: 10000}, 2), 2)

	d.ScreenRepaint(8)
	n, last := p.Repaints()
	assert.Equal(t, 1, n)
	assert.Equal(t, 8, last)
}
