package httpfetch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/unkn0wn-root/swrcache"
)

// JSON fetches route(key), narrows the body with the gjson selector (empty
// means the whole document) and decodes it into V.
func JSON[V any](c *Client, route Route, selector string) swrcache.FetchFunc[V] {
	return func(ctx context.Context, key string) (V, error) {
		var v V
		raw, err := fetchRaw(ctx, c, route, selector, key)
		if err != nil {
			return v, err
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return v, fmt.Errorf("httpfetch: decode %s: %w", key, err)
		}
		return v, nil
	}
}

// Raw is JSON without decoding, for callers that only pass documents along.
func Raw(c *Client, route Route, selector string) swrcache.FetchFunc[json.RawMessage] {
	return func(ctx context.Context, key string) (json.RawMessage, error) {
		raw, err := fetchRaw(ctx, c, route, selector, key)
		if err != nil {
			return nil, err
		}
		if !json.Valid(raw) {
			return nil, fmt.Errorf("httpfetch: %s: response is not JSON", key)
		}
		return json.RawMessage(raw), nil
	}
}

func fetchRaw(ctx context.Context, c *Client, route Route, selector, key string) ([]byte, error) {
	path, q, err := route(key)
	if err != nil {
		return nil, err
	}
	body, err := c.Get(ctx, path, q)
	if err != nil {
		return nil, err
	}
	return Select(body, selector)
}
