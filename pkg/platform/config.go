// Package platform loads gateway configuration and assembles the engine,
// its backends and the supporting services.
package platform

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/txn2/sql-gateway/pkg/audit"
	"github.com/txn2/sql-gateway/pkg/auth"
	"github.com/txn2/sql-gateway/pkg/cache"
	"github.com/txn2/sql-gateway/pkg/dispatch"
	"github.com/txn2/sql-gateway/pkg/parser"
	"github.com/txn2/sql-gateway/pkg/registry"
)

// CurrentConfigVersion is the config API version this build reads.
const CurrentConfigVersion = "v1"

// supportedConfigVersions lists every apiVersion LoadConfig accepts.
var supportedConfigVersions = []string{CurrentConfigVersion}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Config holds the complete gateway configuration.
type Config struct {
	APIVersion string `yaml:"apiVersion"`

	Server   ServerConfig    `yaml:"server"`
	Logging  LoggingConfig   `yaml:"logging"`
	Auth     auth.Config     `yaml:"auth"`
	Cache    CacheConfig     `yaml:"cache"`
	Parser   ParserConfig    `yaml:"parser"`
	Dispatch dispatch.Config `yaml:"dispatch"`

	// BackendDefaults holds kind-level config merged under each backend.
	BackendDefaults map[string]map[string]any `yaml:"backend_defaults"`
	Backends        []registry.AdapterConfig  `yaml:"backends"`

	Audit    audit.Config   `yaml:"audit"`
	Database DatabaseConfig `yaml:"database"`
}

// ServerConfig configures the HTTP front door.
type ServerConfig struct {
	Name            string        `yaml:"name"`
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64           `yaml:"max_body_bytes"`
	TLS          TLSConfig       `yaml:"tls"`
	RateLimit    RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig limits API requests per client IP.
type RateLimitConfig struct {
	Disabled bool          `yaml:"disabled"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
	Burst    int           `yaml:"burst"`
}

// TLSConfig configures TLS.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// CacheConfig configures the result cache.
type CacheConfig struct {
	Enabled *bool `yaml:"enabled"`

	cache.Config `yaml:",inline"`
}

// IsEnabled reports whether caching is on. It defaults to true.
func (c CacheConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ParserConfig configures dialect fallback.
type ParserConfig struct {
	// Dialects is tried in order. Empty means the built-in order.
	Dialects []string `yaml:"dialects"`
}

// DatabaseConfig configures the gateway's own PostgreSQL database, used by
// the audit store.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MigrateOnStart  *bool         `yaml:"migrate_on_start"`
}

// ShouldMigrate reports whether migrations run at startup. It defaults to
// true.
func (d DatabaseConfig) ShouldMigrate() bool {
	return d.MigrateOnStart == nil || *d.MigrateOnStart
}

// LoaderConfig returns the backend section in the form the registry loader
// takes.
func (c *Config) LoaderConfig() registry.LoaderConfig {
	return registry.LoaderConfig{
		Defaults: c.BackendDefaults,
		Backends: c.Backends,
	}
}

// LoadConfig loads configuration from a file.
// The path is expected to come from command line arguments, controlled by the administrator.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration, expanding ${VAR} references and
// applying defaults. It does not validate.
func ParseConfig(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = CurrentConfigVersion
	}
	if !slices.Contains(supportedConfigVersions, cfg.APIVersion) {
		return nil, fmt.Errorf("unsupported config apiVersion %q (supported: %s)",
			cfg.APIVersion, strings.Join(supportedConfigVersions, ", "))
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "sql-gateway"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.Server.RateLimit.Requests == 0 {
		cfg.Server.RateLimit.Requests = 100
	}
	if cfg.Server.RateLimit.Window == 0 {
		cfg.Server.RateLimit.Window = 15 * time.Minute
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = cache.DefaultTTL
	}
	if cfg.Cache.MaxSize == 0 {
		cfg.Cache.MaxSize = cache.DefaultMaxSize
	}
	if len(cfg.Parser.Dialects) == 0 {
		cfg.Parser.Dialects = slices.Clone(parser.DefaultDialects)
	}
	if cfg.Audit.Store == "" {
		cfg.Audit.Store = audit.StoreLog
	}
	if cfg.Audit.RetentionDays == 0 {
		cfg.Audit.RetentionDays = 90
	}
	if cfg.Audit.CleanupEvery == 0 {
		cfg.Audit.CleanupEvery = 24 * time.Hour
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Auth.JWT != nil && cfg.Auth.JWT.RoleClaimPath == "" {
		cfg.Auth.JWT.RoleClaimPath = "roles"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("logging.format %q must be json or text", c.Logging.Format))
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, "logging.level: "+err.Error())
	}

	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		errs = append(errs, "server.tls.cert_file and server.tls.key_file are required when TLS is enabled")
	}
	if rl := c.Server.RateLimit; !rl.Disabled {
		if rl.Requests < 0 {
			errs = append(errs, "server.rate_limit.requests must be positive")
		}
		if rl.Window < 0 {
			errs = append(errs, "server.rate_limit.window must be positive")
		}
		if rl.Burst < 0 {
			errs = append(errs, "server.rate_limit.burst must not be negative")
		}
	}

	if c.Cache.TTL < 0 {
		errs = append(errs, "cache.ttl must not be negative")
	}
	if c.Cache.MaxSize < 0 {
		errs = append(errs, "cache.max_size must not be negative")
	}
	if c.Dispatch.DefaultTimeout < 0 {
		errs = append(errs, "dispatch.default_timeout must not be negative")
	}

	for _, name := range c.Parser.Dialects {
		if _, err := parser.Lookup(name); err != nil {
			errs = append(errs, "parser.dialects: "+err.Error())
		}
	}

	errs = append(errs, c.validateBackends()...)
	errs = append(errs, c.validateAuth()...)

	if c.Audit.Enabled {
		switch c.Audit.Store {
		case audit.StoreLog:
		case audit.StorePostgres:
			if c.Database.DSN == "" {
				errs = append(errs, "database.dsn is required for the postgres audit store")
			}
		default:
			errs = append(errs, fmt.Sprintf("audit.store %q must be %s or %s",
				c.Audit.Store, audit.StoreLog, audit.StorePostgres))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateBackends() []string {
	var errs []string
	seen := make(map[string]bool, len(c.Backends))
	for i, b := range c.Backends {
		if b.Name == "" {
			errs = append(errs, fmt.Sprintf("backends[%d].name is required", i))
			continue
		}
		key := strings.ToLower(b.Name)
		if seen[key] {
			errs = append(errs, fmt.Sprintf("backends[%d]: duplicate backend name %q", i, b.Name))
		}
		seen[key] = true
		if b.Kind == "" {
			errs = append(errs, fmt.Sprintf("backends[%d].kind is required", i))
		}
		if b.Timeout < 0 {
			errs = append(errs, fmt.Sprintf("backends[%d].timeout must not be negative", i))
		}
	}
	return errs
}

func (c *Config) validateAuth() []string {
	if !c.Auth.Enabled {
		return nil
	}
	var errs []string
	if c.Auth.JWT == nil && len(c.Auth.APIKeys) == 0 && !c.Auth.AllowAnonymous {
		errs = append(errs, "auth requires jwt, api_keys or allow_anonymous when enabled")
	}
	if c.Auth.JWT != nil && c.Auth.JWT.SigningKey == "" {
		errs = append(errs, "auth.jwt.signing_key is required")
	}
	for i, k := range c.Auth.APIKeys {
		if k.Name == "" {
			errs = append(errs, fmt.Sprintf("auth.api_keys[%d].name is required", i))
		}
		if (k.Key == "") == (k.Hash == "") {
			errs = append(errs, fmt.Sprintf("auth.api_keys[%d] needs exactly one of key or hash", i))
		}
	}
	return errs
}
