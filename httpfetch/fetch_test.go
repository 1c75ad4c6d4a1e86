package httpfetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/unkn0wn-root/swrcache"
)

type portfolio struct {
	ID         string  `json:"id"`
	TotalValue float64 `json:"totalValue"`
}

func newAPI(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestJSONFetchesKeyPath(t *testing.T) {
	srv := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/portfolio/123", r.URL.Path)
		assert.Equal(t, "EUR", r.URL.Query().Get("currency"))
		assert.Equal(t, "dashboard/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "web", r.Header.Get("X-Client"))
		_, _ = w.Write([]byte(`{"data":{"id":"123","totalValue":9035.41},"meta":{}}`))
	})

	c, err := New(srv.URL+"/v1", Options{
		UserAgent:   "dashboard/1.0",
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok"}),
		Header:      http.Header{"X-Client": []string{"web"}},
	})
	require.NoError(t, err)

	fetch := JSON[portfolio](c, KeyPath, "data")
	key := swrcache.KeyOf("portfolio", "123", map[string]string{"currency": "EUR"})
	got, err := fetch(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, portfolio{ID: "123", TotalValue: 9035.41}, got)
}

func TestNon2xxBecomesResponseError(t *testing.T) {
	srv := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"portfolio not found"}}`))
	})
	c, err := New(srv.URL, Options{})
	require.NoError(t, err)

	_, err = JSON[portfolio](c, KeyPath, "")(context.Background(), "portfolio:9")
	var re *swrcache.ResponseError
	require.ErrorAs(t, err, &re)
	require.Equal(t, http.StatusNotFound, re.StatusCode)
	require.Equal(t, "portfolio not found", re.Message)
	require.False(t, swrcache.DefaultRetryPolicy(err))
}

func TestServerErrorIsRetryable(t *testing.T) {
	srv := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream timeout", http.StatusGatewayTimeout)
	})
	c, err := New(srv.URL, Options{})
	require.NoError(t, err)

	_, err = Raw(c, Static("/market", nil), "")(context.Background(), "market")
	var re *swrcache.ResponseError
	require.ErrorAs(t, err, &re)
	require.Empty(t, re.Message, "plain-text bodies carry no message")
	require.True(t, swrcache.DefaultRetryPolicy(err))
}

func TestNetworkFailureBecomesTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c, err := New(addr, Options{Client: &http.Client{Timeout: time.Second}})
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "/portfolio/1", nil)

	var te *swrcache.TransportError
	require.ErrorAs(t, err, &te)
	require.Equal(t, http.MethodGet, te.Op)
	require.True(t, swrcache.DefaultRetryPolicy(err))
}

func TestCancelledContextIsNotTransportError(t *testing.T) {
	srv := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	c, err := New(srv.URL, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Get(ctx, "/slow", nil)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, swrcache.DefaultRetryPolicy(err))
}

func TestBodyLimit(t *testing.T) {
	srv := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"padding":"0123456789"}`))
	})
	c, err := New(srv.URL, Options{MaxBody: 8})
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "/", nil)
	require.ErrorContains(t, err, "exceeds 8 bytes")
}

func TestSelect(t *testing.T) {
	body := []byte(`{"data":{"holdings":[{"symbol":"VWCE"},{"symbol":"AGGH"}]}}`)

	got, err := Select(body, "data.holdings.#.symbol")
	require.NoError(t, err)
	require.JSONEq(t, `["VWCE","AGGH"]`, string(got))

	same, err := Select(body, " ")
	require.NoError(t, err)
	require.Equal(t, body, same)

	_, err = Select(body, "data.goals")
	require.True(t, errors.Is(err, ErrNoMatch))
}

func TestKeyPath(t *testing.T) {
	cases := map[string]struct {
		path  string
		query url.Values
	}{
		"market":                           {"/market", nil},
		"portfolio:123":                    {"/portfolio/123", nil},
		"holdings:42?sort=value":           {"/holdings/42", url.Values{"sort": {"value"}}},
		swrcache.KeyOf("goals", "a b", nil): {"/goals/a%20b", nil},
	}
	for key, want := range cases {
		path, q, err := KeyPath(key)
		require.NoError(t, err, key)
		require.Equal(t, want.path, path, key)
		require.Equal(t, want.query, q, key)
	}

	_, _, err := KeyPath("")
	require.ErrorIs(t, err, swrcache.ErrInvalidKey)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New("ftp://example.com", Options{})
	require.Error(t, err)
	_, err = New("://nope", Options{})
	require.Error(t, err)
}
