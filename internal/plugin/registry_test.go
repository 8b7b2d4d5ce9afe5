package plugin

import (
	"sync"
	"testing"

	"github.com/shaunagostinho/roadmap/internal/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedProvider string

func (n namedProvider) Name() string { return string(n) }

type bindingProvider struct {
	namedProvider
	id int
}

func (b *bindingProvider) Bind(id int) { b.id = id }

func TestRegisterAssignsFirstFreeSlot(t *testing.T) {
	r := NewRegistry()

	seen := map[int]bool{}
	for i := 1; i < MaxProviders; i++ {
		id, err := r.Register(namedProvider("p"))
		require.NoError(t, err)
		assert.Equal(t, i, id)
		assert.False(t, seen[id], "id %d returned twice", id)
		seen[id] = true
	}
	assert.Equal(t, MaxProviders-1, r.Count())

	require.True(t, r.Unregister(4))
	id, err := r.Register(namedProvider("again"))
	require.NoError(t, err)
	assert.Equal(t, 4, id)
}

func TestRegisterAtCapacity(t *testing.T) {
	r := NewRegistry()
	for i := 1; i < MaxProviders; i++ {
		_, err := r.Register(namedProvider("p"))
		require.NoError(t, err)
	}
	before := r.Providers()

	id, err := r.Register(namedProvider("tenth"))
	assert.ErrorIs(t, err, ErrNoCapacity)
	assert.Equal(t, -1, id)
	assert.Equal(t, before, r.Providers())
	assert.Equal(t, 9, r.Count())
}

func TestRegisterBindsID(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(namedProvider("first"))
	require.NoError(t, err)

	p := &bindingProvider{namedProvider: "second"}
	id, err := r.Register(p)
	require.NoError(t, err)
	assert.Equal(t, 2, id)
	assert.Equal(t, 2, p.id)
}

func TestRegisterNil(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(nil)
	assert.Error(t, err)
	assert.Zero(t, r.Count())
}

func TestUnregister(t *testing.T) {
	r := NewRegistry()
	id, err := r.Register(namedProvider("p"))
	require.NoError(t, err)

	assert.True(t, r.Unregister(id))
	_, ok := r.Lookup(id)
	assert.False(t, ok)
	assert.Zero(t, r.Count())

	// Repeated and invalid unregistrations leave the registry alone.
	assert.False(t, r.Unregister(id))
	assert.False(t, r.Unregister(BuiltinID))
	assert.False(t, r.Unregister(-3))
	assert.False(t, r.Unregister(MaxProviders))
	assert.Zero(t, r.Count())
}

func TestLookup(t *testing.T) {
	r := NewRegistry()
	id, err := r.Register(namedProvider("p"))
	require.NoError(t, err)

	p, ok := r.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, "p", p.Name())

	_, ok = r.Lookup(BuiltinID)
	assert.False(t, ok)

	assert.Panics(t, func() { r.Lookup(MaxProviders) })
	assert.Panics(t, func() { r.Lookup(-1) })
}

func TestProvidersAscending(t *testing.T) {
	r := NewRegistry()
	for _, n := range []string{"a", "b", "c", "d"} {
		_, err := r.Register(namedProvider(n))
		require.NoError(t, err)
	}
	r.Unregister(2)

	var ids []int
	for _, e := range r.Providers() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []int{1, 3, 4}, ids)
	assert.Equal(t, 3, r.Count())
}

type constOverride int

func (constOverride) Name() string { return "const" }
func (c constOverride) OverrideLine(lineID, category, region int) int {
	return int(c)
}
func (c constOverride) FindConnectedLines(crossing geo.Position, max int) []Line {
	return []Line{NewLine(int(c), 1, 0, 0)}
}

func TestRegisterDuringDispatch(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher(nil, r, &countingReporter{})

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id, err := r.Register(constOverride(1))
				if err != nil {
					continue
				}
				r.Unregister(id)
			}
		}()
	}
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				d.OverrideLine(1, 1, 1)
				d.FindConnectedLines(geo.Position{}, MaxProviders)
				d.ScreenRepaint(1)
			}
		}()
	}
	wg.Wait()
	assert.Zero(t, r.Count())

	// A registration is seen by the very next dispatch.
	id, err := r.Register(constOverride(9))
	require.NoError(t, err)
	assert.Equal(t, 9, d.OverrideLine(1, 1, 1))
	require.True(t, r.Unregister(id))
	assert.Equal(t, 0, d.OverrideLine(1, 1, 1))
}

func TestSameLine(t *testing.T) {
	a := NewLine(1, 7, 2, 100)

	tests := []struct {
		name string
		b    Line
		want bool
	}{
		{"identical", a, true},
		{"category differs", NewLine(1, 7, 5, 100), true},
		{"provider differs", NewLine(2, 7, 2, 100), false},
		{"line differs", NewLine(1, 8, 2, 100), false},
		{"region differs", NewLine(1, 7, 2, 101), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SameLine(a, tt.b))
			assert.Equal(t, tt.want, SameLine(tt.b, a))
		})
	}

	// Raw equality still distinguishes categories.
	assert.NotEqual(t, a, NewLine(1, 7, 5, 100))

	assert.True(t, SameLineRef(&a, &a))
	assert.False(t, SameLineRef(&a, nil))
	assert.False(t, SameLineRef(nil, nil))
}

func TestSameStreet(t *testing.T) {
	a := NewStreet(3, 42)
	assert.True(t, SameStreet(a, NewStreet(3, 42)))
	assert.False(t, SameStreet(a, NewStreet(4, 42)))
	assert.False(t, SameStreet(a, NewStreet(3, 43)))

	assert.True(t, SameStreetRef(&a, &a))
	assert.False(t, SameStreetRef(nil, &a))
}
