// Package geo: coordinates, municipal boundaries and the containment / distance primitives.
// Every function here is pure; nothing is cached or mutated after construction.
package geo

import (
	"fmt"

	"civic-api/internal/apperr"
)

// Coordinate is a WGS84 point in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude" yaml:"lat" bson:"latitude"`
	Longitude float64 `json:"longitude" yaml:"lng" bson:"longitude"`
}

func (c Coordinate) Validate() error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return apperr.E(apperr.Validation, "latitude %v out of range [-90,90]", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return apperr.E(apperr.Validation, "longitude %v out of range [-180,180]", c.Longitude)
	}
	return nil
}

func (c Coordinate) String() string { return fmt.Sprintf("(%.6f, %.6f)", c.Latitude, c.Longitude) }

// Boundary is either a *Polygon or a Circle.
type Boundary interface {
	Contains(p Coordinate) bool
	isBoundary()
}

// Polygon vertices form an implicitly closed ring; the last vertex connects to the first.
type Polygon struct {
	Vertices []Coordinate
	bbox     [4]float64 // minLat, minLng, maxLat, maxLng
}

// NewPolygon copies the vertices and precomputes the bounding box.
func NewPolygon(vertices []Coordinate) (*Polygon, error) {
	if len(vertices) < 3 {
		return nil, apperr.E(apperr.Configuration, "polygon needs at least 3 vertices, got %d", len(vertices))
	}
	vs := make([]Coordinate, len(vertices))
	copy(vs, vertices)
	for _, v := range vs {
		if err := v.Validate(); err != nil {
			return nil, apperr.Wrap(apperr.Configuration, err, "polygon vertex")
		}
	}
	p := &Polygon{Vertices: vs}
	p.bbox = computeBBox(vs)
	return p, nil
}

func (*Polygon) isBoundary() {}

// Circle contains every point whose great-circle distance to Center is at most RadiusKm.
type Circle struct {
	Center   Coordinate
	RadiusKm float64
}

func NewCircle(center Coordinate, radiusKm float64) (Circle, error) {
	if err := center.Validate(); err != nil {
		return Circle{}, apperr.Wrap(apperr.Configuration, err, "circle center")
	}
	if radiusKm <= 0 {
		return Circle{}, apperr.E(apperr.Configuration, "circle radius must be > 0, got %v", radiusKm)
	}
	return Circle{Center: center, RadiusKm: radiusKm}, nil
}

func (Circle) isBoundary() {}

func (c Circle) Contains(p Coordinate) bool {
	return HaversineKm(c.Center, p) <= c.RadiusKm
}

// Contains reports whether point lies inside boundary.
func Contains(b Boundary, point Coordinate) bool {
	if b == nil {
		return false
	}
	return b.Contains(point)
}
