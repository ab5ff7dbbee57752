// Package municipality: ordered municipality registry, coordinate resolution and
// department e-mail routing. The registry is built once and only read afterwards.
package municipality

import (
	"log/slog"
	"strings"

	"civic-api/internal/apperr"
	"civic-api/internal/geo"
	"civic-api/internal/logger"
	"civic-api/internal/metrics"
)

const (
	GeneralCategory = "general"

	UnknownName = "Unknown"
	UnknownCode = "unknown"
)

type Municipality struct {
	Name                   string
	Code                   string
	Boundaries             []geo.Boundary
	DefaultDepartmentEmail string
	DepartmentRouting      map[string][]string
}

// Contains is true when any boundary contains p.
func (m *Municipality) Contains(p geo.Coordinate) bool {
	for _, b := range m.Boundaries {
		if geo.Contains(b, p) {
			return true
		}
	}
	return false
}

// Info is the display projection of a resolution.
type Info struct {
	Name  string `json:"name"`
	Code  string `json:"code"`
	Found bool   `json:"found"`
}

type Options struct {
	// OversightEmail is added to every recipient set.
	OversightEmail string
	// FallbackEmails and GenericFallbackEmail are used when no municipality matches.
	FallbackEmails       []string
	GenericFallbackEmail string
	Logger               *slog.Logger
}

// Registry resolves in registration order: the first municipality that contains
// the point wins, so overlapping boundaries are decided by position in the list.
type Registry struct {
	list []Municipality
	opts Options
}

func NewRegistry(ms []Municipality, opts Options) (*Registry, error) {
	if opts.OversightEmail == "" {
		opts.OversightEmail = DefaultOversightEmail
	}
	if len(opts.FallbackEmails) == 0 {
		opts.FallbackEmails = append([]string(nil), defaultFallbackEmails...)
	}
	if opts.GenericFallbackEmail == "" {
		opts.GenericFallbackEmail = DefaultGenericFallbackEmail
	}
	if opts.Logger == nil {
		opts.Logger = logger.L()
	}
	seen := make(map[string]bool, len(ms))
	list := make([]Municipality, 0, len(ms))
	for i, m := range ms {
		if m.Code == "" {
			return nil, apperr.E(apperr.Configuration, "municipality #%d (%q) has no code", i, m.Name)
		}
		if seen[m.Code] {
			return nil, apperr.E(apperr.Configuration, "duplicate municipality code %q", m.Code)
		}
		if len(m.Boundaries) == 0 {
			return nil, apperr.E(apperr.Configuration, "municipality %q has no boundaries", m.Code)
		}
		seen[m.Code] = true
		routing := make(map[string][]string, len(m.DepartmentRouting))
		for k, v := range m.DepartmentRouting {
			routing[k] = append([]string(nil), v...)
		}
		m.DepartmentRouting = routing
		m.Boundaries = append([]geo.Boundary(nil), m.Boundaries...)
		list = append(list, m)
	}
	return &Registry{list: list, opts: opts}, nil
}

// Resolve returns the governing municipality, or false when no boundary matches.
func (r *Registry) Resolve(p geo.Coordinate) (*Municipality, bool) {
	for i := range r.list {
		if r.list[i].Contains(p) {
			return &r.list[i], true
		}
	}
	return nil, false
}

// DepartmentEmails never returns an empty set. The oversight address comes first.
func (r *Registry) DepartmentEmails(p geo.Coordinate, category string) []string {
	m, ok := r.Resolve(p)
	if !ok {
		metrics.MunicipalityResolveTotal.WithLabelValues("miss").Inc()
		r.opts.Logger.Warn("municipality_not_found", "lat", p.Latitude, "lng", p.Longitude, "category", category)
		out := []string{r.opts.OversightEmail}
		out = append(out, r.opts.FallbackEmails...)
		out = append(out, r.opts.GenericFallbackEmail)
		return dedupe(out)
	}
	metrics.MunicipalityResolveTotal.WithLabelValues("hit").Inc()
	dept, ok := m.DepartmentRouting[category]
	if !ok || len(dept) == 0 {
		dept, ok = m.DepartmentRouting[GeneralCategory]
	}
	if !ok || len(dept) == 0 {
		if d := emailDomain(m.DefaultDepartmentEmail); d != "" {
			dept = []string{"customercare@" + d}
		} else {
			dept = []string{r.opts.GenericFallbackEmail}
		}
	}
	out := make([]string, 0, len(dept)+1)
	out = append(out, r.opts.OversightEmail)
	out = append(out, dept...)
	return dedupe(out)
}

func (r *Registry) Info(p geo.Coordinate) Info {
	m, ok := r.Resolve(p)
	if !ok {
		return Info{Name: UnknownName, Code: UnknownCode, Found: false}
	}
	return Info{Name: m.Name, Code: m.Code, Found: true}
}

// All returns the municipalities in precedence order.
func (r *Registry) All() []Municipality {
	out := make([]Municipality, len(r.list))
	copy(out, r.list)
	return out
}

func (r *Registry) Codes() []string {
	out := make([]string, 0, len(r.list))
	for _, m := range r.list {
		out = append(out, m.Code)
	}
	return out
}

func (r *Registry) OversightEmail() string { return r.opts.OversightEmail }

func emailDomain(addr string) string {
	i := strings.LastIndexByte(addr, '@')
	if i < 0 || i == len(addr)-1 {
		return ""
	}
	return addr[i+1:]
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		s = strings.TrimSpace(s)
		k := strings.ToLower(s)
		if s == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	return out
}
