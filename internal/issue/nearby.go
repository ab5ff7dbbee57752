package issue

import "civic-api/internal/geo"

// DefaultNearbyRadiusKm applies when the caller gives no radius.
const DefaultNearbyRadiusKm = 5.0

// FindNearby keeps issues within radiusKm of center (inclusive), in input order.
// A non-positive radius yields no results.
func FindNearby(issues []Issue, center geo.Coordinate, radiusKm float64) []Issue {
	out := []Issue{}
	if radiusKm <= 0 {
		return out
	}
	for _, it := range issues {
		if geo.HaversineKm(it.Coordinate, center) <= radiusKm {
			out = append(out, it)
		}
	}
	return out
}
