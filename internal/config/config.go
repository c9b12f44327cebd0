// Package config loads the strata CLI configuration from defaults, an
// optional YAML or TOML file and STRATA_* environment variables, in
// increasing order of precedence.
package config

import (
	"slices"
	"strings"
	"time"

	"github.com/aretw0/strata/pkg/render"
	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment override, e.g. STRATA_STORE_BACKEND.
const EnvPrefix = "STRATA"

// Store backends.
const (
	BackendMemory = "memory"
	BackendYAML   = "yaml"
	BackendLoam   = "loam"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Backends lists the accepted store.backend values.
var Backends = []string{BackendMemory, BackendYAML, BackendLoam, BackendSQLite, BackendRedis}

// Config is the typed configuration of the CLI.
type Config struct {
	Store    StoreConfig    `mapstructure:"store"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Render   RenderConfig   `mapstructure:"render"`
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Generate GenerateConfig `mapstructure:"generate"`
}

// StoreConfig selects the rule store backend and its location.
type StoreConfig struct {
	Backend string      `mapstructure:"backend"`
	Path    string      `mapstructure:"path"`
	Watch   bool        `mapstructure:"watch"`
	Redis   RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds the connection settings of the redis backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// CacheConfig bounds the generation cache by entry count and age.
type CacheConfig struct {
	Size int           `mapstructure:"size"`
	TTL  time.Duration `mapstructure:"ttl"`
}

// ResolverConfig tunes hierarchy resolution.
type ResolverConfig struct {
	Parallelism int `mapstructure:"parallelism"`
}

// RenderConfig names the template engine ("jinja" or "go").
type RenderConfig struct {
	Engine string `mapstructure:"engine"`
}

// LogConfig sets the zap level and encoder.
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// ServerConfig configures the HTTP server started by "strata serve".
type ServerConfig struct {
	Port    int  `mapstructure:"port"`
	Metrics bool `mapstructure:"metrics"`
}

// GenerateConfig holds defaults for "strata generate".
type GenerateConfig struct {
	Target string `mapstructure:"target"`
}

// SetDefaults configures default values for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.path", "")
	v.SetDefault("store.watch", false)
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "strata:")

	v.SetDefault("cache.size", 1000)
	v.SetDefault("cache.ttl", time.Hour)

	v.SetDefault("resolver.parallelism", 1)
	v.SetDefault("render.engine", render.EngineJinja)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.metrics", true)

	v.SetDefault("generate.target", "plain")
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads the configuration. An empty path skips the file.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}
	return LoadWithViper(v)
}

// LoadWithViper decodes v, e.g. after command flags were bound to it.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if !slices.Contains(Backends, c.Store.Backend) {
		return errors.Newf("store.backend %q is not one of %s", c.Store.Backend, strings.Join(Backends, ", "))
	}
	switch c.Store.Backend {
	case BackendYAML, BackendLoam, BackendSQLite:
		if c.Store.Path == "" {
			return errors.Newf("store.path is required for the %s backend", c.Store.Backend)
		}
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return errors.New("store.redis.addr is required for the redis backend")
		}
	}
	if c.Cache.Size <= 0 {
		return errors.Newf("cache.size must be positive, got %d", c.Cache.Size)
	}
	if c.Cache.TTL <= 0 {
		return errors.Newf("cache.ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.Resolver.Parallelism < 1 {
		return errors.Newf("resolver.parallelism must be at least 1, got %d", c.Resolver.Parallelism)
	}
	if _, err := render.New(c.Render.Engine); err != nil {
		return errors.Wrap(err, "render.engine")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log.level")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.Newf("server.port %d is out of range", c.Server.Port)
	}
	return nil
}
