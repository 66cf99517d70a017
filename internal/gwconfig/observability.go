package gwconfig

// ObservabilityConfig groups the ambient logging, metrics, and tracing
// configuration surfaced alongside the authentication-specific sections.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig controls the zap-backed logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DefaultLoggingConfig returns info/json/stdout.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{Level: "info", Format: "json", Output: "stdout"}
}

// MetricsConfig controls the Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Port    int    `yaml:"port"`
}

// TracingConfig controls the OpenTelemetry trace provider.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	SamplingRate float64 `yaml:"sampling_rate"`
	ServiceName  string  `yaml:"service_name"`
}

// StorageConfig controls the optional Redis-backed shared cache tier. When
// Enabled is false, the service falls back to the in-memory per-process
// LRU caches.
type StorageConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// VaultConfig controls the optional Vault-backed key source, consulted for
// issuers configured with IssuerKindVault.
type VaultConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address"`
	Token     string `yaml:"token"`
	Namespace string `yaml:"namespace"`
	Field     string `yaml:"field"`
}

// FetcherConfig controls C6's resilience knobs.
type FetcherConfig struct {
	TimeoutSeconds      int     `yaml:"timeout_seconds"`
	RateLimitPerSecond  float64 `yaml:"rate_limit_per_second"`
	RateLimitBurst      int     `yaml:"rate_limit_burst"`
	BreakerFailureRatio float64 `yaml:"breaker_failure_ratio"`
}
