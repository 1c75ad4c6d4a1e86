package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
	"golang.org/x/oauth2"

	"github.com/unkn0wn-root/swrcache"
	"github.com/unkn0wn-root/swrcache/codec"
	"github.com/unkn0wn-root/swrcache/httpfetch"
	"github.com/unkn0wn-root/swrcache/provider"
	"github.com/unkn0wn-root/swrcache/provider/bigcache"
	"github.com/unkn0wn-root/swrcache/provider/ristretto"
)

type doc = json.RawMessage

// Runner subscribes every configured resource and prints a line per
// transition.
type Runner struct {
	cfg   Config
	cache swrcache.Cache[doc]
	api   *httpfetch.Client
	clock clockwork.Clock
	log   swrcache.Logger

	outMu sync.Mutex
	out   io.Writer

	mu        sync.Mutex
	resources []*swrcache.Resource[doc]
}

type Option func(*runnerOpts)

type runnerOpts struct {
	clock  clockwork.Clock
	client *http.Client
	getenv func(string) string
}

func WithClock(c clockwork.Clock) Option { return func(o *runnerOpts) { o.clock = c } }

func WithHTTPClient(c *http.Client) Option { return func(o *runnerOpts) { o.client = c } }

func WithGetenv(f func(string) string) Option { return func(o *runnerOpts) { o.getenv = f } }

func NewRunner(cfg Config, log swrcache.Logger, out io.Writer, opts ...Option) (*Runner, error) {
	ro := runnerOpts{clock: clockwork.NewRealClock(), getenv: os.Getenv}
	for _, o := range opts {
		o(&ro)
	}

	hopts := httpfetch.Options{Client: ro.client, UserAgent: cfg.UserAgent}
	if ro.client == nil && cfg.Timeout > 0 {
		hopts.Client = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.TokenEnv != "" {
		tok := ro.getenv(cfg.TokenEnv)
		if tok == "" {
			return nil, fmt.Errorf("watch: %s is empty", cfg.TokenEnv)
		}
		hopts.TokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok})
	}
	api, err := httpfetch.New(cfg.BaseURL, hopts)
	if err != nil {
		return nil, err
	}

	copts := swrcache.Options[doc]{
		Namespace: cfg.Namespace,
		Logger:    log,
		Clock:     ro.clock,
		IdleTTL:   cfg.IdleTTL,
	}
	if cfg.Retention.Provider != "" {
		store, err := newStore(cfg.Retention)
		if err != nil {
			return nil, err
		}
		copts.Store = store
		copts.Codec = newCodec(cfg.Retention.Codec)
		copts.RetentionTTL = cfg.Retention.TTL
		copts.ComputeSetCost = func(_ string, raw []byte) int64 { return int64(len(raw)) }
	}
	cache, err := swrcache.New[doc](copts)
	if err != nil {
		return nil, err
	}

	return &Runner{cfg: cfg, cache: cache, api: api, clock: ro.clock, log: log, out: out}, nil
}

func newStore(r Retention) (provider.Provider, error) {
	ttl := r.TTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	switch r.Provider {
	case "bigcache":
		return bigcache.New(context.Background(), bigcache.Config{
			LifeWindow:         ttl,
			Shards:             16,
			HardMaxCacheSizeMB: r.MaxMB,
		})
	default:
		maxCost := r.MaxCost
		if maxCost <= 0 {
			maxCost = 64 << 20
		}
		return ristretto.New(ristretto.Config{NumCounters: 10_000, MaxCost: maxCost})
	}
}

func newCodec(name string) codec.Codec[doc] {
	switch name {
	case "msgpack":
		return codec.Msgpack[doc]{}
	case "cbor":
		return codec.MustCBOR[doc](false)
	default:
		return codec.JSON[doc]{}
	}
}

// Start subscribes every resource. Fetches begin immediately.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, res := range r.cfg.Resources {
		route := httpfetch.KeyPath
		if res.Path != "" {
			route = httpfetch.Static(res.Path, nil)
		}
		fetch := httpfetch.Raw(r.api, route, res.Select)
		h, err := r.cache.Use(res.Key, fetch, res.options(), r.render(res.Key))
		if err != nil {
			return fmt.Errorf("watch: %s: %w", res.Key, err)
		}
		r.resources = append(r.resources, h)
	}
	r.log.Info("watching", swrcache.Fields{"resources": len(r.resources), "base_url": r.cfg.BaseURL})
	return nil
}

func (r *Runner) FocusRegained()      { r.cache.FocusRegained() }
func (r *Runner) NetworkReconnected() { r.cache.NetworkReconnected() }

// Refresh revalidates every resource and waits for all of them.
func (r *Runner) Refresh(ctx context.Context) error {
	r.mu.Lock()
	hs := append([]*swrcache.Resource[doc](nil), r.resources...)
	r.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, h := range hs {
		wg.Add(1)
		go func(h *swrcache.Resource[doc]) {
			defer wg.Done()
			if err := h.Refresh(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", h.Key(), err))
				mu.Unlock()
			}
		}(h)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Ready reports whether every resource has finished its first load.
func (r *Runner) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.resources {
		e := h.Snapshot()
		if e.Validating || (!e.HasData && e.Err == nil) {
			return false
		}
	}
	return len(r.resources) > 0
}

// Stats exposes the cache counters.
func (r *Runner) Stats() swrcache.Stats { return r.cache.Stats() }

func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	for _, h := range r.resources {
		h.Close()
	}
	r.resources = nil
	r.mu.Unlock()
	return r.cache.Close(ctx)
}

func (r *Runner) render(key string) swrcache.Listener[doc] {
	return func(e swrcache.Entry[doc]) {
		r.outMu.Lock()
		defer r.outMu.Unlock()
		fmt.Fprintln(r.out, Line(key, e, r.clock.Now()))
	}
}

// Line formats one transition:
//
//	portfolio:123  ok            1.2 kB  fetched 3 seconds ago
func Line(key string, e swrcache.Entry[doc], now time.Time) string {
	status := "ok"
	switch {
	case e.IsLoading():
		status = "loading"
	case e.Validating:
		status = "revalidating"
	case e.Err != nil:
		status = "error"
	}

	size := "-"
	if e.HasData {
		size = humanize.Bytes(uint64(len(e.Data)))
	}
	age := "never"
	if !e.FetchedAt.IsZero() {
		age = humanize.RelTime(e.FetchedAt, now, "ago", "from now")
	}

	line := fmt.Sprintf("%-28s %-13s %8s  fetched %s", key, status, size, age)
	if e.Err != nil {
		line += "  err=" + e.Err.Error()
	}
	return line
}
