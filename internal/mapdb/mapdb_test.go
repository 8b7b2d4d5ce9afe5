package mapdb

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/roadmap/internal/geo"
	"github.com/shaunagostinho/roadmap/internal/plugin"
)

const sample = `
regions:
  - id: 100
    name: Springfield
    streets:
      - id: 1
        prefix: N
        name: Main
        type: St
        city: Springfield
        address: 100-198
    lines:
      - id: 7
        category: 2
        street: 1
        from: {lon: 0, lat: 0}
        to: {lon: 10000, lat: 0}
      - id: 8
        category: 3
        street: 9
        from: {lon: 10000, lat: 0}
        to: {lon: 10000, lat: 10000}
  - id: 200
    name: Shelbyville
`

func TestReadAndQuery(t *testing.T) {
	db, err := Read(strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, 2, db.Regions())

	// Nothing is active yet.
	assert.Equal(t, geo.Position{}, db.LineFrom(7))
	assert.Equal(t, plugin.NoStreet, db.LineStreet(7).StreetID)

	require.NoError(t, db.ActivateRegion(100))
	assert.Equal(t, geo.Position{Longitude: 0, Latitude: 0}, db.LineFrom(7))
	assert.Equal(t, geo.Position{Longitude: 10000, Latitude: 0}, db.LineTo(7))

	info := db.LineStreet(7)
	assert.Equal(t, 1, info.StreetID)
	assert.Equal(t, "N Main St, Springfield", info.FullName)
	assert.Equal(t, plugin.StreetProperties{Address: "100-198", Street: "N Main St", City: "Springfield"}, info.Properties)

	// Line 8 references a street that does not exist.
	assert.Equal(t, plugin.NoStreet, db.LineStreet(8).StreetID)
	assert.Equal(t, geo.Position{}, db.LineFrom(99))
}

func TestLineDistance(t *testing.T) {
	db, err := Read(strings.NewReader(sample))
	require.NoError(t, err)
	require.NoError(t, db.ActivateRegion(100))

	n, ok := db.LineDistance(geo.Position{Longitude: 5000, Latitude: 1000}, 7, 2)
	require.True(t, ok)
	assert.Equal(t, plugin.NewLine(plugin.BuiltinID, 7, 2, 100), n.Line)
	assert.Equal(t, geo.Position{Longitude: 5000, Latitude: 0}, n.Intersection)
	assert.InDelta(t, 111, n.Distance, 1)

	_, ok = db.LineDistance(geo.Position{}, 7, 3)
	assert.False(t, ok, "category mismatch")
	_, ok = db.LineDistance(geo.Position{}, 99, 2)
	assert.False(t, ok)
}

func TestActivateUnknownRegion(t *testing.T) {
	db, err := Read(strings.NewReader(sample))
	require.NoError(t, err)

	assert.ErrorIs(t, db.ActivateRegion(300), ErrRegionUnknown)
	assert.ErrorIs(t, Empty().ActivateRegion(100), ErrRegionUnknown)
}

func TestRejectsDuplicates(t *testing.T) {
	_, err := New(File{Regions: []RegionData{{ID: 1}, {ID: 1}}})
	assert.Error(t, err)

	_, err = New(File{Regions: []RegionData{{ID: 1, Lines: []LineData{{ID: 2}, {ID: 2}}}}})
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))

	db, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, db.Regions())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEmptyInput(t *testing.T) {
	db, err := Read(strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, db.Regions())
}

func TestBuiltinThroughDispatcher(t *testing.T) {
	db, err := Read(strings.NewReader(sample))
	require.NoError(t, err)
	d := plugin.NewDispatcher(db, plugin.NewRegistry(), nil)

	line := plugin.NewLine(plugin.BuiltinID, 7, 2, 100)
	require.NoError(t, d.ActivateDB(line))
	assert.Equal(t, "N Main St, Springfield", d.StreetFullName(line))
	assert.Equal(t, plugin.NewStreet(plugin.BuiltinID, 1), d.StreetOf(line))

	assert.ErrorIs(t, d.ActivateDB(plugin.NewLine(plugin.BuiltinID, 7, 2, 999)), ErrRegionUnknown)
}
