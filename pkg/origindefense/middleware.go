// Package origindefense restricts routes to a fixed set of source IPs and CIDRs.
package origindefense

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Allowlist holds single IPs and CIDR ranges (IPv4 and IPv6). The source IP
// is RemoteAddr unless realIPHeader names a header set by a trusted proxy.
type Allowlist struct {
	l            *slog.Logger
	allowIPs     map[string]struct{}
	allowCIDRs   []*net.IPNet
	realIPHeader string
}

// New parses entries such as "127.0.0.1" or "10.0.0.0/8". A list with no
// non-blank entry yields a nil Allowlist, whose Gin handler lets everything through.
func New(l *slog.Logger, entries []string, realIPHeader string) (*Allowlist, error) {
	a := &Allowlist{l: l, allowIPs: map[string]struct{}{}, realIPHeader: strings.TrimSpace(realIPHeader)}
	var cidrs []*net.IPNet
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			_, n, err := net.ParseCIDR(e)
			if err != nil {
				return nil, fmt.Errorf("allowlist entry %q: %w", e, err)
			}
			cidrs = append(cidrs, n)
			continue
		}
		ip := net.ParseIP(e)
		if ip == nil {
			return nil, fmt.Errorf("allowlist entry %q: not an IP", e)
		}
		a.allowIPs[ip.String()] = struct{}{}
	}
	if len(a.allowIPs) == 0 && len(cidrs) == 0 {
		return nil, nil
	}
	a.allowCIDRs = uniqueCIDRs(cidrs)
	return a, nil
}

func (a *Allowlist) Allowed(ip net.IP) bool {
	if ip == nil {
		return false
	}
	if _, ok := a.allowIPs[ip.String()]; ok {
		return true
	}
	for _, n := range a.allowCIDRs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func (a *Allowlist) Gin() gin.HandlerFunc {
	if a == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		ip := a.extractIP(c.Request)
		if a.Allowed(ip) {
			c.Next()
			return
		}
		a.l.Warn("origin_defense_block", "ip", fmt.Sprint(ip), "path", c.FullPath())
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	}
}

func (a *Allowlist) extractIP(r *http.Request) net.IP {
	if a.realIPHeader != "" {
		if raw := r.Header.Get(a.realIPHeader); raw != "" {
			if ip := net.ParseIP(strings.TrimSpace(strings.Split(raw, ",")[0])); ip != nil {
				return ip
			}
		}
	}
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return net.ParseIP(host)
}

func uniqueCIDRs(in []*net.IPNet) []*net.IPNet {
	seen := map[string]bool{}
	out := make([]*net.IPNet, 0, len(in))
	for _, n := range in {
		if seen[n.String()] {
			continue
		}
		seen[n.String()] = true
		out = append(out, n)
	}
	return out
}
