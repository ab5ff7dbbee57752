package issue

import (
	"math/rand"
	"testing"

	"civic-api/internal/geo"

	"github.com/stretchr/testify/assert"
)

func at(id int64, lat, lng float64) Issue {
	return Issue{ID: id, Coordinate: geo.Coordinate{Latitude: lat, Longitude: lng}}
}

func ids(issues []Issue) []int64 {
	out := make([]int64, 0, len(issues))
	for _, it := range issues {
		out = append(out, it.ID)
	}
	return out
}

func TestFindNearbyKeepsInputOrder(t *testing.T) {
	center := geo.Coordinate{Latitude: -25.7479, Longitude: 28.2293}
	issues := []Issue{
		at(3, -25.7480, 28.2290),
		at(1, -26.2041, 28.0473), // Johannesburg, ~54 km
		at(7, -25.7500, 28.2300),
		at(2, -25.7600, 28.2400),
	}
	assert.Equal(t, []int64{3, 7, 2}, ids(FindNearby(issues, center, 5)))
	assert.Equal(t, []int64{3, 1, 7, 2}, ids(FindNearby(issues, center, 60)))
}

func TestFindNearbyInclusiveRadius(t *testing.T) {
	center := geo.Coordinate{Latitude: 0, Longitude: 0}
	edge := at(1, 1, 0)
	d := geo.HaversineKm(center, edge.Coordinate)
	assert.Len(t, FindNearby([]Issue{edge}, center, d), 1)
	assert.Empty(t, FindNearby([]Issue{edge}, center, d-1e-6))
}

func TestFindNearbyNonPositiveRadius(t *testing.T) {
	issues := []Issue{at(1, 0, 0)}
	got := FindNearby(issues, geo.Coordinate{}, 0)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, FindNearby(issues, geo.Coordinate{}, -3))
	assert.NotNil(t, FindNearby(nil, geo.Coordinate{}, 5))
}

func TestFindNearbyNeverReturnsFarIssues(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	center := geo.Coordinate{Latitude: -25.7, Longitude: 28.2}
	var issues []Issue
	for i := 0; i < 500; i++ {
		issues = append(issues, at(int64(i), center.Latitude+rng.Float64()-0.5, center.Longitude+rng.Float64()-0.5))
	}
	for _, radius := range []float64{0.5, 5, 20} {
		got := FindNearby(issues, center, radius)
		inside := 0
		for _, it := range issues {
			if geo.HaversineKm(it.Coordinate, center) <= radius {
				inside++
			}
		}
		assert.Len(t, got, inside)
		for _, it := range got {
			assert.LessOrEqual(t, geo.HaversineKm(it.Coordinate, center), radius)
		}
	}
}
