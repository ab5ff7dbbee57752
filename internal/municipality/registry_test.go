package municipality

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"civic-api/internal/apperr"
	"civic-api/internal/geo"
	"civic-api/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pretoriaCentral = geo.Coordinate{Latitude: -25.7479, Longitude: 28.2293}
	limpopoBush     = geo.Coordinate{Latitude: -24.0, Longitude: 29.0}
)

func quietOpts() Options {
	return Options{Logger: logger.New(io.Discard, "error", "text")}
}

func defaultRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := DefaultRegistry(quietOpts())
	require.NoError(t, err)
	return r
}

func TestResolvePretoriaCentral(t *testing.T) {
	r := defaultRegistry(t)
	m, ok := r.Resolve(pretoriaCentral)
	require.True(t, ok)
	assert.Equal(t, "tshwane", m.Code)

	assert.Equal(t, []string{"waltstrydom@gmail.com", "streetlights@tshwane.gov.za"},
		r.DepartmentEmails(pretoriaCentral, "streetlight"))
}

func TestResolveOutsideEveryMunicipality(t *testing.T) {
	r := defaultRegistry(t)
	m, ok := r.Resolve(limpopoBush)
	assert.False(t, ok)
	assert.Nil(t, m)

	got := r.DepartmentEmails(limpopoBush, "pothole")
	require.NotEmpty(t, got)
	assert.Equal(t, DefaultOversightEmail, got[0])
	assert.Contains(t, got, DefaultGenericFallbackEmail)

	info := r.Info(limpopoBush)
	assert.Equal(t, Info{Name: UnknownName, Code: UnknownCode, Found: false}, info)
}

func TestUnknownCategoryFallsBackToGeneral(t *testing.T) {
	r := defaultRegistry(t)
	assert.Equal(t, []string{"waltstrydom@gmail.com", "customercare@tshwane.gov.za"},
		r.DepartmentEmails(pretoriaCentral, "unknown-category"))
}

func TestMissingGeneralSynthesisesCustomerCare(t *testing.T) {
	r := defaultRegistry(t)
	kempton := geo.Coordinate{Latitude: -26.1, Longitude: 28.23}
	m, ok := r.Resolve(kempton)
	require.True(t, ok)
	require.Equal(t, "ekurhuleni", m.Code)

	assert.Equal(t, []string{"waltstrydom@gmail.com", "customercare@ekurhuleni.gov.za"},
		r.DepartmentEmails(kempton, "graffiti"))
	assert.Equal(t, []string{"waltstrydom@gmail.com", "roads@ekurhuleni.gov.za"},
		r.DepartmentEmails(kempton, "pothole"))
}

func TestCircleMunicipality(t *testing.T) {
	r := defaultRegistry(t)
	info := r.Info(geo.Coordinate{Latitude: -33.9249, Longitude: 18.4241})
	assert.Equal(t, Info{Name: "City of Cape Town", Code: "cape-town", Found: true}, info)
	assert.Equal(t, []string{"waltstrydom@gmail.com", "customercare@capetown.gov.za"},
		r.DepartmentEmails(geo.Coordinate{Latitude: -33.93, Longitude: 18.43}, "water"))
}

func overlapping(t *testing.T) (first, second Municipality) {
	t.Helper()
	a, err := geo.NewPolygon([]geo.Coordinate{{Latitude: 0, Longitude: 0}, {Latitude: 0, Longitude: 2}, {Latitude: 2, Longitude: 2}, {Latitude: 2, Longitude: 0}})
	require.NoError(t, err)
	b, err := geo.NewPolygon([]geo.Coordinate{{Latitude: 1, Longitude: 1}, {Latitude: 1, Longitude: 3}, {Latitude: 3, Longitude: 3}, {Latitude: 3, Longitude: 1}})
	require.NoError(t, err)
	first = Municipality{Name: "First", Code: "m1", Boundaries: []geo.Boundary{a}, DefaultDepartmentEmail: "a@m1.example"}
	second = Municipality{Name: "Second", Code: "m2", Boundaries: []geo.Boundary{b}, DefaultDepartmentEmail: "b@m2.example"}
	return first, second
}

func TestRegistrationOrderDecidesOverlap(t *testing.T) {
	m1, m2 := overlapping(t)
	overlap := geo.Coordinate{Latitude: 1.5, Longitude: 1.5}

	r, err := NewRegistry([]Municipality{m1, m2}, quietOpts())
	require.NoError(t, err)
	got, ok := r.Resolve(overlap)
	require.True(t, ok)
	assert.Equal(t, "m1", got.Code)

	r, err = NewRegistry([]Municipality{m2, m1}, quietOpts())
	require.NoError(t, err)
	got, ok = r.Resolve(overlap)
	require.True(t, ok)
	assert.Equal(t, "m2", got.Code)

	// outside the overlap each municipality still owns its own area
	got, _ = r.Resolve(geo.Coordinate{Latitude: 0.5, Longitude: 0.5})
	assert.Equal(t, "m1", got.Code)
	assert.Equal(t, []string{"m2", "m1"}, r.Codes())
}

func TestAnyBoundaryMatches(t *testing.T) {
	c, err := geo.NewCircle(geo.Coordinate{Latitude: 10, Longitude: 10}, 5)
	require.NoError(t, err)
	m1, _ := overlapping(t)
	m1.Boundaries = append(m1.Boundaries, c)
	r, err := NewRegistry([]Municipality{m1}, quietOpts())
	require.NoError(t, err)
	assert.True(t, r.Info(geo.Coordinate{Latitude: 10.01, Longitude: 10.01}).Found)
	assert.True(t, r.Info(geo.Coordinate{Latitude: 1, Longitude: 1}).Found)
	assert.False(t, r.Info(geo.Coordinate{Latitude: 5, Longitude: 5}).Found)
}

func TestNewRegistryRejectsBadConfig(t *testing.T) {
	m1, m2 := overlapping(t)
	m2.Code = m1.Code
	_, err := NewRegistry([]Municipality{m1, m2}, quietOpts())
	assert.ErrorIs(t, err, apperr.ErrConfiguration)

	_, err = NewRegistry([]Municipality{{Name: "x", Code: "x"}}, quietOpts())
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestRoutingIsUnionDeduplicated(t *testing.T) {
	m1, _ := overlapping(t)
	m1.DepartmentRouting = map[string][]string{"pothole": {"Ops@Example.org", "roads@m1.example"}}
	r, err := NewRegistry([]Municipality{m1}, Options{OversightEmail: "ops@example.org", Logger: quietOpts().Logger})
	require.NoError(t, err)
	assert.Equal(t, []string{"ops@example.org", "roads@m1.example"},
		r.DepartmentEmails(geo.Coordinate{Latitude: 1, Longitude: 1}, "pothole"))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	geojson := `{"type":"FeatureCollection","features":[{"type":"Feature","properties":{},
	  "geometry":{"type":"Polygon","coordinates":[[[30,-30],[31,-30],[31,-29],[30,-29],[30,-30]]]}}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "east.geojson"), []byte(geojson), 0o644))
	yml := `
oversight_email: ops@example.org
municipalities:
  - name: Square Town
    code: square
    default_department_email: hello@square.example
    routing:
      pothole: [roads@square.example]
    boundaries:
      - polygon: [[0, 0], [0, 2], [2, 2], [2, 0]]
  - name: Round Town
    code: round
    default_department_email: hello@round.example
    boundaries:
      - circle: {lat: 10, lng: 10, radius_km: 3}
  - name: East Town
    code: east
    default_department_email: hello@east.example
    boundaries:
      - geojson: east.geojson
`
	path := filepath.Join(dir, "municipalities.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	r, err := LoadFile(path, quietOpts())
	require.NoError(t, err)
	assert.Equal(t, []string{"square", "round", "east"}, r.Codes())
	assert.Equal(t, "ops@example.org", r.OversightEmail())
	assert.Equal(t, "square", r.Info(geo.Coordinate{Latitude: 1, Longitude: 1}).Code)
	assert.Equal(t, "round", r.Info(geo.Coordinate{Latitude: 10, Longitude: 10.01}).Code)
	assert.Equal(t, "east", r.Info(geo.Coordinate{Latitude: -29.5, Longitude: 30.5}).Code)
	assert.Equal(t, []string{"ops@example.org", "roads@square.example"},
		r.DepartmentEmails(geo.Coordinate{Latitude: 1, Longitude: 1}, "pothole"))
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), quietOpts())
	assert.ErrorIs(t, err, apperr.ErrConfiguration)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("municipalities:\n  - code: x\n    boundaries:\n      - {}\n"), 0o644))
	_, err = LoadFile(path, quietOpts())
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestLoadFileRejectsMalformedGeoJSON(t *testing.T) {
	cases := map[string]string{
		"string coordinate": `{"type":"Polygon","coordinates":[[[30,-30],["31",-30],[31,-29],[30,-29]]]}`,
		"short position":    `{"type":"Polygon","coordinates":[[[30,-30],[31],[31,-29],[30,-29]]]}`,
		"null coordinate":   `{"type":"MultiPolygon","coordinates":[[[[30,-30],[31,null],[31,-29],[30,-29]]]]}`,
		"too few vertices":  `{"type":"Polygon","coordinates":[[[30,-30],[31,-30],[30,-30]]]}`,
	}
	for name, gj := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.geojson"), []byte(gj), 0o644))
			path := filepath.Join(dir, "municipalities.yaml")
			yml := "municipalities:\n  - code: bad\n    boundaries:\n      - geojson: bad.geojson\n"
			require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

			_, err := LoadFile(path, quietOpts())
			assert.ErrorIs(t, err, apperr.ErrConfiguration)
		})
	}
}

func TestLoadGeoJSONSkipsNonPolygonFeatures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mixed.geojson")
	gj := `{"type":"FeatureCollection","features":[
	  {"type":"Feature","geometry":{"type":"Point","coordinates":[30.5,-29.5]}},
	  {"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[30,-30],[31,-30],[31,-29],[30,-29],[30,-30]]]}}]}`
	require.NoError(t, os.WriteFile(path, []byte(gj), 0o644))
	bs, err := loadGeoJSON(path)
	require.NoError(t, err)
	require.Len(t, bs, 1)
	assert.True(t, bs[0].Contains(geo.Coordinate{Latitude: -29.5, Longitude: 30.5}))
}
