package iplocate

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	cases := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"forwarded-for first hop", map[string]string{"X-Forwarded-For": "41.13.2.9, 10.0.0.1"}, "10.0.0.2:443", "41.13.2.9"},
		{"cloudflare", map[string]string{"CF-Connecting-IP": "196.25.1.1"}, "10.0.0.2:443", "196.25.1.1"},
		{"rfc7239", map[string]string{"Forwarded": `for="[2001:db8::1]";proto=https`}, "10.0.0.2:443", "2001:db8::1"},
		{"remote addr", nil, "155.232.1.40:5123", "155.232.1.40"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.header {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientIP(r))
		})
	}
}

func TestEdgeCoordinate(t *testing.T) {
	h := http.Header{}
	h.Set("X-EO-Geo-Latitude", "-25.7479")
	h.Set("X-EO-Geo-Longitude", "28.2293")
	c, ok := EdgeCoordinate(h)
	assert.True(t, ok)
	assert.InDelta(t, -25.7479, c.Latitude, 1e-9)

	h.Set("X-EO-Geo-Latitude", "120")
	_, ok = EdgeCoordinate(h)
	assert.False(t, ok, "out of range")

	_, ok = EdgeCoordinate(http.Header{})
	assert.False(t, ok)
}

func TestNilLocator(t *testing.T) {
	var l *Locator
	_, ok := l.Locate("8.8.8.8")
	assert.False(t, ok)
	assert.NoError(t, l.Close())

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, src := l.FromRequest(r)
	assert.Equal(t, SourceNone, src)

	r.Header.Set("X-EO-Geo-Latitude", "-26.2")
	r.Header.Set("X-EO-Geo-Longitude", "28.04")
	_, src = l.FromRequest(r)
	assert.Equal(t, SourceEdge, src)
}

func TestOpenMissingDatabase(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "GeoLite2-City.mmdb"))
	assert.Error(t, err)
}
