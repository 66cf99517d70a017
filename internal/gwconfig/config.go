// Package gwconfig loads the static configuration the authentication core
// is built from: the gateway's own service name, the per-method access
// policy, and the issuer registry seed data. It never parses request
// traffic — only startup configuration.
package gwconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// IssuerKind selects how an IssuerEntry's key material is resolved.
type IssuerKind string

// Supported issuer kinds.
const (
	// IssuerKindDiscovered means the key URL is learned via OpenID discovery.
	IssuerKindDiscovered IssuerKind = "discovered"
	// IssuerKindConfigured means the key URL is fetched directly, no discovery.
	IssuerKindConfigured IssuerKind = "configured"
	// IssuerKindVault means the key is resolved from a Vault KV path instead
	// of over HTTP; KeyURL carries a "vault://mount/path" reference.
	IssuerKindVault IssuerKind = "vault"
)

// MethodConfig is the static backing store for a MethodPolicy.
type MethodConfig struct {
	RequiresAuth     bool                `yaml:"requires_auth"`
	AllowedIssuers   []string            `yaml:"allowed_issuers"`
	AllowedAudiences map[string][]string `yaml:"allowed_audiences"`
}

// IssuerEntry is one seed row for the IssuerRegistry.
type IssuerEntry struct {
	Issuer string     `yaml:"issuer"`
	KeyURL string     `yaml:"key_url"`
	Kind   IssuerKind `yaml:"kind"`
}

// CacheConfig controls the sizing and TTLs of the two-tier cache.
// TokenCacheTTL applies only to the shared Redis token cache. KeyCacheTTL
// is loaded and defaulted but no component reads it: positive key-set
// entries always live for keycache.DefaultTTL.
type CacheConfig struct {
	TokenCacheCapacity int      `yaml:"token_cache_capacity"`
	TokenCacheTTL      Duration `yaml:"token_cache_ttl"`
	KeyCacheCapacity   int      `yaml:"key_cache_capacity"`
	KeyCacheTTL        Duration `yaml:"key_cache_ttl"`
}

// DefaultCacheConfig returns the default cache sizing, matching the
// 300-second default key-cache TTL.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TokenCacheCapacity: 10000,
		TokenCacheTTL:      Duration(0),
		KeyCacheCapacity:   1000,
		KeyCacheTTL:        Duration(300_000_000_000), // 300s in ns
	}
}

// ServiceConfig is the top-level configuration for the authentication core.
type ServiceConfig struct {
	ServiceName   string                  `yaml:"service_name"`
	ListenAddr    string                  `yaml:"listen_addr"`
	Methods       map[string]MethodConfig `yaml:"methods"`
	Issuers       []IssuerEntry           `yaml:"issuers"`
	Cache         CacheConfig             `yaml:"cache"`
	Observability ObservabilityConfig     `yaml:"observability"`
	Storage       StorageConfig           `yaml:"storage"`
	Vault         VaultConfig             `yaml:"vault"`
	Fetcher       FetcherConfig           `yaml:"fetcher"`

	// IssuerConfigPath is set by Load to the file it read from, so the
	// issuer file watcher knows what to watch. Not itself a YAML field.
	IssuerConfigPath string `yaml:"-"`
}

// Load reads and parses a ServiceConfig from a YAML file at path.
func Load(path string) (*ServiceConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gwconfig: read %s: %w", path, err)
	}
	var cfg ServiceConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("gwconfig: parse %s: %w", path, err)
	}
	cfg.IssuerConfigPath = path
	if cfg.Cache.KeyCacheTTL == 0 {
		cfg.Cache.KeyCacheTTL = DefaultCacheConfig().KeyCacheTTL
	}
	if cfg.Cache.TokenCacheCapacity == 0 {
		cfg.Cache.TokenCacheCapacity = DefaultCacheConfig().TokenCacheCapacity
	}
	if cfg.Cache.KeyCacheCapacity == 0 {
		cfg.Cache.KeyCacheCapacity = DefaultCacheConfig().KeyCacheCapacity
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Observability.Logging.Level == "" {
		cfg.Observability.Logging = DefaultLoggingConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration is internally consistent.
func (c *ServiceConfig) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("gwconfig: service_name must not be empty")
	}
	for _, ie := range c.Issuers {
		if ie.Issuer == "" {
			return fmt.Errorf("gwconfig: issuer entry with empty issuer")
		}
		switch ie.Kind {
		case IssuerKindDiscovered, IssuerKindConfigured, IssuerKindVault, "":
		default:
			return fmt.Errorf("gwconfig: issuer %s: unknown kind %q", ie.Issuer, ie.Kind)
		}
	}
	return nil
}
