package municipality

import (
	"civic-api/internal/geo"
)

const (
	DefaultOversightEmail       = "waltstrydom@gmail.com"
	DefaultGenericFallbackEmail = "customercare@tshwane.gov.za"
)

var defaultFallbackEmails = []string{"callcentre@tshwane.gov.za"}

// Simplified metro outlines (lat, lng). Order is precedence: Tshwane wins the
// strip it shares with Johannesburg and Ekurhuleni.
var (
	tshwaneOutline = []geo.Coordinate{
		{Latitude: -25.15, Longitude: 27.95},
		{Latitude: -25.15, Longitude: 28.75},
		{Latitude: -25.45, Longitude: 29.05},
		{Latitude: -25.95, Longitude: 28.75},
		{Latitude: -25.95, Longitude: 28.10},
		{Latitude: -25.60, Longitude: 27.90},
	}
	johannesburgOutline = []geo.Coordinate{
		{Latitude: -25.90, Longitude: 27.80},
		{Latitude: -25.90, Longitude: 28.20},
		{Latitude: -26.45, Longitude: 28.15},
		{Latitude: -26.50, Longitude: 27.85},
	}
	ekurhuleniOutline = []geo.Coordinate{
		{Latitude: -25.90, Longitude: 28.20},
		{Latitude: -25.90, Longitude: 28.60},
		{Latitude: -26.50, Longitude: 28.60},
		{Latitude: -26.45, Longitude: 28.15},
	}
)

// Defaults returns the built-in registry entries used when no registry file is configured.
func Defaults() []Municipality {
	return []Municipality{
		{
			Name:                   "City of Tshwane",
			Code:                   "tshwane",
			Boundaries:             []geo.Boundary{mustPolygon(tshwaneOutline)},
			DefaultDepartmentEmail: "customercare@tshwane.gov.za",
			DepartmentRouting: map[string][]string{
				"pothole":         {"roads@tshwane.gov.za"},
				"streetlight":     {"streetlights@tshwane.gov.za"},
				"water":           {"waterandsanitation@tshwane.gov.za"},
				"sewage":          {"waterandsanitation@tshwane.gov.za"},
				"electricity":     {"energy@tshwane.gov.za"},
				"illegal-dumping": {"waste@tshwane.gov.za"},
				GeneralCategory:   {"customercare@tshwane.gov.za"},
			},
		},
		{
			Name:                   "City of Johannesburg",
			Code:                   "johannesburg",
			Boundaries:             []geo.Boundary{mustPolygon(johannesburgOutline)},
			DefaultDepartmentEmail: "joburgconnect@joburg.org.za",
			DepartmentRouting: map[string][]string{
				"pothole":       {"jra@joburg.org.za"},
				"streetlight":   {"jra@joburg.org.za"},
				"water":         {"customerservice@jwater.co.za"},
				"electricity":   {"customerservice@citypower.co.za"},
				GeneralCategory: {"joburgconnect@joburg.org.za"},
			},
		},
		{
			Name:                   "City of Ekurhuleni",
			Code:                   "ekurhuleni",
			Boundaries:             []geo.Boundary{mustPolygon(ekurhuleniOutline)},
			DefaultDepartmentEmail: "info@ekurhuleni.gov.za",
			DepartmentRouting: map[string][]string{
				"pothole":     {"roads@ekurhuleni.gov.za"},
				"water":       {"water@ekurhuleni.gov.za"},
				"streetlight": {"electricity@ekurhuleni.gov.za"},
			},
		},
		{
			Name: "City of Cape Town",
			Code: "cape-town",
			Boundaries: []geo.Boundary{
				geo.Circle{Center: geo.Coordinate{Latitude: -33.9249, Longitude: 18.4241}, RadiusKm: 45},
			},
			DefaultDepartmentEmail: "service.requests@capetown.gov.za",
		},
	}
}

// DefaultRegistry builds the registry from Defaults.
func DefaultRegistry(opts Options) (*Registry, error) {
	return NewRegistry(Defaults(), opts)
}

func mustPolygon(vs []geo.Coordinate) *geo.Polygon {
	p, err := geo.NewPolygon(vs)
	if err != nil {
		panic(err)
	}
	return p
}
