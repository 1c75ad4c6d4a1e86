// Package httpfetch builds swrcache fetchers for JSON HTTP APIs.
//
//	api, _ := httpfetch.New("https://api.example.com/v1", httpfetch.Options{
//	    UserAgent:   "dashboard/1.0",
//	    TokenSource: oauthConfig.TokenSource(ctx, tok),
//	})
//	fetch := httpfetch.JSON[Portfolio](api, httpfetch.KeyPath, "data")
//	res, _ := cache.Use(swrcache.KeyOf("portfolio", "123", nil), fetch, swrcache.ResourceOptions{})
//
// Network failures surface as *swrcache.TransportError and non-2xx responses
// as *swrcache.ResponseError, which the cache's default retry policy
// understands.
package httpfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/unkn0wn-root/swrcache"
)

const (
	defaultTimeout = 30 * time.Second
	defaultMaxBody = 10 << 20
)

type Options struct {
	Client      *http.Client       // nil => new client with a 30s timeout
	TokenSource oauth2.TokenSource // bearer auth; nil => none
	UserAgent   string
	Header      http.Header // sent with every request
	MaxBody     int64       // 0 => 10MiB
}

type Client struct {
	base    *url.URL
	hc      *http.Client
	header  http.Header
	maxBody int64
}

// userAgentRoundTripper is a custom RoundTripper that adds a User-Agent header.
type userAgentRoundTripper struct {
	Wrapped   http.RoundTripper
	UserAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone request to avoid mutating the original
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", rt.UserAgent)
	return rt.Wrapped.RoundTrip(clone)
}

func New(baseURL string, opts Options) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("httpfetch: base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("httpfetch: base url %q: scheme must be http or https", baseURL)
	}

	hc := &http.Client{Timeout: defaultTimeout}
	if opts.Client != nil {
		cp := *opts.Client
		hc = &cp
	}
	rt := hc.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	if opts.TokenSource != nil {
		rt = &oauth2.Transport{Source: opts.TokenSource, Base: rt}
	}
	if opts.UserAgent != "" {
		rt = &userAgentRoundTripper{Wrapped: rt, UserAgent: opts.UserAgent}
	}
	hc.Transport = rt

	maxBody := opts.MaxBody
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	return &Client{base: base, hc: hc, header: opts.Header.Clone(), maxBody: maxBody}, nil
}

// Get issues GET base+path?query and returns the body of a 2xx response.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	target := u.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &swrcache.TransportError{Op: http.MethodGet, URL: target, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, &swrcache.TransportError{Op: "read", URL: target, Err: err}
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("httpfetch: %s: body exceeds %d bytes", target, c.maxBody)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &swrcache.ResponseError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body),
			Body:       body,
		}
	}
	return body, nil
}

// errorMessage digs the human-readable message out of common error envelopes.
func errorMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range []string{"message", "error.message", "error", "detail"} {
		if r := gjson.GetBytes(body, path); r.Type == gjson.String && r.Str != "" {
			return r.Str
		}
	}
	return ""
}

// Route maps a cache key to a request path and query.
type Route func(key string) (path string, query url.Values, err error)

// KeyPath routes keys built by swrcache.KeyOf:
//
//	portfolio:123?currency=EUR  ->  /portfolio/123?currency=EUR
//	market                      ->  /market
func KeyPath(key string) (string, url.Values, error) {
	kind, id, params, err := swrcache.ParseKey(key)
	if err != nil {
		return "", nil, err
	}
	path := "/" + kind
	if id != "" {
		path += "/" + url.PathEscape(id)
	}
	return path, params, nil
}

// Static always requests path, whatever the key.
func Static(path string, query url.Values) Route {
	return func(string) (string, url.Values, error) { return path, query, nil }
}

// ErrNoMatch reports a selector that matched nothing in the response.
var ErrNoMatch = errors.New("httpfetch: selector matched nothing")

// Select applies a gjson path to body. An empty path returns body unchanged.
func Select(body []byte, path string) ([]byte, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return body, nil
	}
	r := gjson.GetBytes(body, path)
	if !r.Exists() {
		return nil, fmt.Errorf("%w: %q", ErrNoMatch, path)
	}
	return []byte(r.Raw), nil
}
