// Package relay forwards workflow requests to the external workflow engine.
package relay

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"civic-api/internal/metrics"

	"github.com/go-resty/resty/v2"
)

type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    []byte
	Headers http.Header
}

type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

var hopByHop = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Host":                true,
	"Content-Length":      true,
	"Content-Encoding":    true,
	"Accept-Encoding":     true,
	"Authorization":       true,
	"Cookie":              true,
}

type Client struct {
	http  *resty.Client
	token string
}

// New returns a client rooted at baseURL. A non-empty token is sent as a
// bearer token in place of any client Authorization header.
func New(baseURL, token string, timeout time.Duration) *Client {
	hc := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("User-Agent", "civic-api-relay/1")
	return &Client{http: hc, token: token}
}

func (c *Client) Forward(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := c.forward(ctx, req)
	metrics.RelayDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	switch {
	case err != nil:
		metrics.RelayRequestsTotal.WithLabelValues("error").Inc()
	case resp.Status >= 500:
		metrics.RelayRequestsTotal.WithLabelValues("upstream_5xx").Inc()
	default:
		metrics.RelayRequestsTotal.WithLabelValues("ok").Inc()
	}
	return resp, err
}

func (c *Client) forward(ctx context.Context, req Request) (*Response, error) {
	r := c.http.R().SetContext(ctx)
	for k, vs := range req.Headers {
		if hopByHop[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	if c.token != "" {
		r.SetAuthToken(c.token)
	}
	if len(req.Query) > 0 {
		r.SetQueryParamsFromValues(req.Query)
	}
	if len(req.Body) > 0 {
		r.SetBody(req.Body)
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	path := "/" + strings.TrimLeft(req.Path, "/")
	resp, err := r.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("relay %s %s: %w", method, path, err)
	}
	out := &Response{Status: resp.StatusCode(), Headers: http.Header{}, Body: resp.Body()}
	for k, vs := range resp.Header() {
		if hopByHop[k] {
			continue
		}
		out.Headers[k] = vs
	}
	return out, nil
}
