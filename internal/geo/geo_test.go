package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(t *testing.T) *Polygon {
	t.Helper()
	p, err := NewPolygon([]Coordinate{
		{Latitude: -26, Longitude: 28},
		{Latitude: -26, Longitude: 29},
		{Latitude: -25, Longitude: 29},
		{Latitude: -25, Longitude: 28},
	})
	require.NoError(t, err)
	return p
}

func TestPolygonContains(t *testing.T) {
	p := square(t)
	cases := []struct {
		name string
		pt   Coordinate
		want bool
	}{
		{"center", Coordinate{-25.5, 28.5}, true},
		{"near corner inside", Coordinate{-25.9, 28.1}, true},
		{"north", Coordinate{-24.5, 28.5}, false},
		{"east", Coordinate{-25.5, 29.5}, false},
		{"far away", Coordinate{51.5, -0.12}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Contains(p, tc.pt))
		})
	}
}

func TestConcavePolygon(t *testing.T) {
	// U shape opening north; the notch between the arms is outside.
	p, err := NewPolygon([]Coordinate{
		{0, 0}, {0, 3}, {3, 3}, {3, 2}, {1, 2}, {1, 1}, {3, 1}, {3, 0},
	})
	require.NoError(t, err)
	assert.True(t, p.Contains(Coordinate{0.5, 1.5}))
	assert.True(t, p.Contains(Coordinate{2.5, 0.5}))
	assert.True(t, p.Contains(Coordinate{2.5, 2.5}))
	assert.False(t, p.Contains(Coordinate{2, 1.5}))
}

func TestPolygonWithoutPrecomputedBox(t *testing.T) {
	p := &Polygon{Vertices: square(t).Vertices}
	assert.True(t, p.Contains(Coordinate{-25.5, 28.5}))
	assert.False(t, p.Contains(Coordinate{-27, 28.5}))
}

func TestContainsIsDeterministic(t *testing.T) {
	p := square(t)
	pts := []Coordinate{{-25.5, 28.5}, {-24, 28.5}, {-25.1234, 28.9876}}
	for _, pt := range pts {
		first := p.Contains(pt)
		for i := 0; i < 50; i++ {
			assert.Equal(t, first, p.Contains(pt))
		}
	}
}

func TestDegeneratePolygon(t *testing.T) {
	_, err := NewPolygon([]Coordinate{{0, 0}, {1, 1}})
	assert.Error(t, err)
	assert.False(t, (&Polygon{Vertices: []Coordinate{{0, 0}, {1, 1}}}).Contains(Coordinate{0.5, 0.5}))
	assert.False(t, Contains(nil, Coordinate{}))
}

func TestCircleContains(t *testing.T) {
	c, err := NewCircle(Coordinate{-33.9249, 18.4241}, 10)
	require.NoError(t, err)
	assert.True(t, c.Contains(Coordinate{-33.9249, 18.4241}))
	assert.True(t, Contains(c, Coordinate{-33.95, 18.45}))
	assert.False(t, c.Contains(Coordinate{-34.2, 18.4241}))

	_, err = NewCircle(Coordinate{0, 0}, 0)
	assert.Error(t, err)
	_, err = NewCircle(Coordinate{95, 0}, 1)
	assert.Error(t, err)
}

func TestHaversine(t *testing.T) {
	pretoria := Coordinate{-25.7479, 28.2293}
	joburg := Coordinate{-26.2041, 28.0473}

	assert.Equal(t, 0.0, HaversineKm(pretoria, pretoria))
	d := HaversineKm(pretoria, joburg)
	assert.InDelta(t, 53.9, d, 1.0)

	back := HaversineKm(joburg, pretoria)
	assert.LessOrEqual(t, math.Abs(d-back), 1e-9*d)

	// one degree of latitude along a meridian
	assert.InDelta(t, 111.19, HaversineKm(Coordinate{0, 0}, Coordinate{1, 0}), 0.01)
	// antipodes stay finite
	assert.InDelta(t, math.Pi*EarthRadiusKm, HaversineKm(Coordinate{0, 0}, Coordinate{0, 180}), 1e-6)
}

func TestCoordinateValidate(t *testing.T) {
	assert.NoError(t, Coordinate{-90, 180}.Validate())
	assert.Error(t, Coordinate{-90.1, 0}.Validate())
	assert.Error(t, Coordinate{0, 180.5}.Validate())
}
