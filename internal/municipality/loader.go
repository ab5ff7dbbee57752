package municipality

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"civic-api/internal/apperr"
	"civic-api/internal/geo"

	"gopkg.in/yaml.v3"
)

// File is the on-disk registry. Entry order in the file is precedence order.
//
//	oversight_email: ops@example.org
//	municipalities:
//	  - name: City of Tshwane
//	    code: tshwane
//	    default_department_email: customercare@tshwane.gov.za
//	    routing: {streetlight: [streetlights@tshwane.gov.za]}
//	    boundaries:
//	      - polygon: [[-25.15, 27.95], [-25.15, 28.75], [-25.95, 28.75]]
//	      - circle: {lat: -25.74, lng: 28.18, radius_km: 12}
//	      - geojson: tshwane.geojson
type File struct {
	OversightEmail       string      `yaml:"oversight_email"`
	FallbackEmails       []string    `yaml:"fallback_emails"`
	GenericFallbackEmail string      `yaml:"generic_fallback_email"`
	Municipalities       []fileEntry `yaml:"municipalities"`
}

type fileEntry struct {
	Name                   string              `yaml:"name"`
	Code                   string              `yaml:"code"`
	DefaultDepartmentEmail string              `yaml:"default_department_email"`
	Routing                map[string][]string `yaml:"routing"`
	Boundaries             []fileBoundary      `yaml:"boundaries"`
}

type fileBoundary struct {
	Polygon [][2]float64 `yaml:"polygon"`
	Circle  *struct {
		Lat      float64 `yaml:"lat"`
		Lng      float64 `yaml:"lng"`
		RadiusKm float64 `yaml:"radius_km"`
	} `yaml:"circle"`
	// GeoJSON path, relative to the registry file. Polygon and MultiPolygon outer rings are used.
	GeoJSON string `yaml:"geojson"`
}

// LoadFile reads a YAML registry and builds it. Logger and addresses missing from
// the file are taken from base.
func LoadFile(path string, base Options) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.Configuration, err, "read municipality registry")
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, apperr.Wrap(apperr.Configuration, err, "parse municipality registry")
	}
	ms, err := f.build(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	opts := base
	if f.OversightEmail != "" {
		opts.OversightEmail = f.OversightEmail
	}
	if len(f.FallbackEmails) > 0 {
		opts.FallbackEmails = f.FallbackEmails
	}
	if f.GenericFallbackEmail != "" {
		opts.GenericFallbackEmail = f.GenericFallbackEmail
	}
	return NewRegistry(ms, opts)
}

func (f *File) build(dir string) ([]Municipality, error) {
	out := make([]Municipality, 0, len(f.Municipalities))
	for _, e := range f.Municipalities {
		m := Municipality{
			Name:                   e.Name,
			Code:                   e.Code,
			DefaultDepartmentEmail: e.DefaultDepartmentEmail,
			DepartmentRouting:      e.Routing,
		}
		for i, fb := range e.Boundaries {
			bs, err := fb.build(dir)
			if err != nil {
				return nil, apperr.Wrap(apperr.Configuration, err, fmt.Sprintf("municipality %q boundary #%d", e.Code, i))
			}
			m.Boundaries = append(m.Boundaries, bs...)
		}
		out = append(out, m)
	}
	return out, nil
}

func (fb fileBoundary) build(dir string) ([]geo.Boundary, error) {
	switch {
	case len(fb.Polygon) > 0:
		vs := make([]geo.Coordinate, 0, len(fb.Polygon))
		for _, p := range fb.Polygon {
			vs = append(vs, geo.Coordinate{Latitude: p[0], Longitude: p[1]})
		}
		poly, err := geo.NewPolygon(vs)
		if err != nil {
			return nil, err
		}
		return []geo.Boundary{poly}, nil
	case fb.Circle != nil:
		c, err := geo.NewCircle(geo.Coordinate{Latitude: fb.Circle.Lat, Longitude: fb.Circle.Lng}, fb.Circle.RadiusKm)
		if err != nil {
			return nil, err
		}
		return []geo.Boundary{c}, nil
	case fb.GeoJSON != "":
		p := fb.GeoJSON
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		return loadGeoJSON(p)
	}
	return nil, apperr.E(apperr.Configuration, "boundary needs one of polygon, circle or geojson")
}

func loadGeoJSON(path string) ([]geo.Boundary, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var gj map[string]any
	if err := json.Unmarshal(b, &gj); err != nil {
		return nil, err
	}
	var geoms []map[string]any
	switch strings.ToLower(getStr(gj, "type")) {
	case "featurecollection":
		if arr, ok := gj["features"].([]any); ok {
			for _, it := range arr {
				if f, ok := it.(map[string]any); ok {
					if g, ok := f["geometry"].(map[string]any); ok {
						geoms = append(geoms, g)
					}
				}
			}
		}
	case "feature":
		if g, ok := gj["geometry"].(map[string]any); ok {
			geoms = append(geoms, g)
		}
	default:
		geoms = append(geoms, gj)
	}
	var out []geo.Boundary
	for i, g := range geoms {
		bs, err := polygonsFromGeometry(g)
		if err != nil {
			return nil, fmt.Errorf("%s: geometry #%d: %w", path, i, err)
		}
		out = append(out, bs...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no polygon geometry", path)
	}
	return out, nil
}

// polygonsFromGeometry keeps the outer ring of each polygon; holes are ignored.
// Other geometry types yield nothing. GeoJSON positions are [lng, lat].
func polygonsFromGeometry(g map[string]any) ([]geo.Boundary, error) {
	coords, _ := g["coordinates"].([]any)
	switch strings.ToLower(getStr(g, "type")) {
	case "polygon":
		p, err := outerRing(coords)
		if err != nil {
			return nil, err
		}
		return []geo.Boundary{p}, nil
	case "multipolygon":
		var out []geo.Boundary
		for i, part := range coords {
			rings, ok := part.([]any)
			if !ok {
				return nil, fmt.Errorf("polygon #%d is not an array", i)
			}
			p, err := outerRing(rings)
			if err != nil {
				return nil, fmt.Errorf("polygon #%d: %w", i, err)
			}
			out = append(out, p)
		}
		return out, nil
	}
	return nil, nil
}

func outerRing(rings []any) (*geo.Polygon, error) {
	if len(rings) == 0 {
		return nil, fmt.Errorf("polygon has no rings")
	}
	arr, ok := rings[0].([]any)
	if !ok {
		return nil, fmt.Errorf("outer ring is not an array")
	}
	vs := make([]geo.Coordinate, 0, len(arr))
	for i, p := range arr {
		vv, ok := p.([]any)
		if !ok || len(vv) < 2 {
			return nil, fmt.Errorf("position #%d is not a [lng, lat] pair", i)
		}
		lng, ok1 := toFloat(vv[0])
		lat, ok2 := toFloat(vv[1])
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("position #%d has a non-numeric coordinate", i)
		}
		vs = append(vs, geo.Coordinate{Latitude: lat, Longitude: lng})
	}
	// GeoJSON rings repeat the first position at the end.
	if n := len(vs); n > 1 && vs[0] == vs[n-1] {
		vs = vs[:n-1]
	}
	return geo.NewPolygon(vs)
}

func getStr(m map[string]any, k string) string {
	if v, ok := m[k].(string); ok {
		return v
	}
	return ""
}

// toFloat accepts JSON numbers only.
func toFloat(v any) (float64, bool) {
	x, ok := v.(float64)
	return x, ok
}
