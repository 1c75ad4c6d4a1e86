// Package watch drives swrcache from a YAML description of JSON endpoints.
// It backs the swrwatch command.
package watch

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/swrcache"
)

type Config struct {
	BaseURL   string        `yaml:"base_url"`
	Namespace string        `yaml:"namespace"`
	LogLevel  string        `yaml:"log_level"`
	UserAgent string        `yaml:"user_agent"`
	TokenEnv  string        `yaml:"token_env"` // env var holding a bearer token
	Timeout   time.Duration `yaml:"timeout"`
	IdleTTL   time.Duration `yaml:"idle_ttl"`

	Retention Retention  `yaml:"retention"`
	Resources []Resource `yaml:"resources"`
}

type Retention struct {
	Provider string        `yaml:"provider"` // "", "ristretto" or "bigcache"
	Codec    string        `yaml:"codec"`    // json (default), msgpack, cbor
	TTL      time.Duration `yaml:"ttl"`
	MaxCost  int64         `yaml:"max_cost"` // ristretto: bytes; 0 => 64MiB
	MaxMB    int           `yaml:"max_mb"`   // bigcache hard cap; 0 => unlimited
}

type Resource struct {
	Key              string        `yaml:"key"`
	Path             string        `yaml:"path"`   // overrides the key-derived path
	Select           string        `yaml:"select"` // gjson path into the response
	RefreshInterval  time.Duration `yaml:"refresh_interval"`
	DedupingInterval time.Duration `yaml:"deduping_interval"`
	ErrorRetryCount  int           `yaml:"error_retry_count"`
	DisableFocus     bool          `yaml:"disable_focus"`
	DisableReconnect bool          `yaml:"disable_reconnect"`
}

func (r Resource) options() swrcache.ResourceOptions {
	return swrcache.ResourceOptions{
		RefreshInterval:              r.RefreshInterval,
		DedupingInterval:             r.DedupingInterval,
		ErrorRetryCount:              r.ErrorRetryCount,
		DisableFocusRevalidation:     r.DisableFocus,
		DisableReconnectRevalidation: r.DisableReconnect,
	}
}

// Load reads and validates a config file.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

func Parse(b []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("watch: parse config: %w", err)
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "swrwatch"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.BaseURL == "" {
		errs = append(errs, errors.New("base_url is required"))
	}
	if len(c.Resources) == 0 {
		errs = append(errs, errors.New("at least one resource is required"))
	}
	seen := make(map[string]bool, len(c.Resources))
	for i, r := range c.Resources {
		if err := swrcache.ValidateKey(r.Key); err != nil {
			errs = append(errs, fmt.Errorf("resources[%d]: %w", i, err))
			continue
		}
		if seen[r.Key] {
			errs = append(errs, fmt.Errorf("resources[%d]: duplicate key %q", i, r.Key))
		}
		seen[r.Key] = true
	}
	switch c.Retention.Provider {
	case "", "ristretto", "bigcache":
	default:
		errs = append(errs, fmt.Errorf("retention.provider %q: want ristretto or bigcache", c.Retention.Provider))
	}
	switch c.Retention.Codec {
	case "", "json", "msgpack", "cbor":
	default:
		errs = append(errs, fmt.Errorf("retention.codec %q: want json, msgpack or cbor", c.Retention.Codec))
	}
	if len(errs) > 0 {
		return fmt.Errorf("watch: invalid config: %w", errors.Join(errs...))
	}
	return nil
}
