// Package iplocate approximates a caller's coordinate when the client did not
// send one: CDN geo headers first, then a MaxMind city database.
package iplocate

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"civic-api/internal/geo"

	"github.com/oschwald/geoip2-golang"
)

type Source string

const (
	SourceNone   Source = ""
	SourceEdge   Source = "edge"
	SourceGeoIP  Source = "geoip"
	SourceClient Source = "client"
)

// Locator is safe to use as a nil pointer; it then only reads edge headers.
type Locator struct {
	db *geoip2.Reader
}

func Open(path string) (*Locator, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &Locator{db: db}, nil
}

func (l *Locator) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Locate looks ip up in the city database. Private and unknown addresses miss.
func (l *Locator) Locate(ip string) (geo.Coordinate, bool) {
	if l == nil || l.db == nil {
		return geo.Coordinate{}, false
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil || parsed.IsPrivate() || parsed.IsLoopback() {
		return geo.Coordinate{}, false
	}
	rec, err := l.db.City(parsed)
	if err != nil {
		return geo.Coordinate{}, false
	}
	c := geo.Coordinate{Latitude: rec.Location.Latitude, Longitude: rec.Location.Longitude}
	if c.Latitude == 0 && c.Longitude == 0 {
		return geo.Coordinate{}, false
	}
	return c, c.Validate() == nil
}

// FromRequest tries the edge headers, then the client IP.
func (l *Locator) FromRequest(r *http.Request) (geo.Coordinate, Source) {
	if c, ok := EdgeCoordinate(r.Header); ok {
		return c, SourceEdge
	}
	if c, ok := l.Locate(ClientIP(r)); ok {
		return c, SourceGeoIP
	}
	return geo.Coordinate{}, SourceNone
}

// EdgeCoordinate reads the EdgeOne geo headers injected at the CDN.
func EdgeCoordinate(h http.Header) (geo.Coordinate, bool) {
	lat, err1 := strconv.ParseFloat(strings.TrimSpace(h.Get("X-EO-Geo-Latitude")), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(h.Get("X-EO-Geo-Longitude")), 64)
	if err1 != nil || err2 != nil {
		return geo.Coordinate{}, false
	}
	c := geo.Coordinate{Latitude: lat, Longitude: lng}
	return c, c.Validate() == nil
}

// ClientIP walks the usual proxy headers before falling back to RemoteAddr.
// Headers are client-controlled unless a trusted proxy rewrites them.
func ClientIP(r *http.Request) string {
	h := r.Header
	if x := h.Get("X-Forwarded-For"); x != "" {
		return strings.TrimSpace(strings.Split(x, ",")[0])
	}
	for _, k := range []string{"CF-Connecting-IP", "X-Real-IP", "X-Client-IP", "X-EO-Client-IP"} {
		if x := h.Get(k); x != "" {
			return strings.TrimSpace(x)
		}
	}
	if x := h.Get("Forwarded"); x != "" {
		if i := strings.Index(strings.ToLower(x), "for="); i >= 0 {
			y := strings.Trim(x[i+4:], "\" ")
			if p := strings.IndexAny(y, ";,"); p >= 0 {
				y = y[:p]
			}
			return strings.Trim(y, "\"[]")
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
