package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, 1000, cfg.Cache.Size)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 1, cfg.Resolver.Parallelism)
	assert.Equal(t, "jinja", cfg.Render.Engine)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "plain", cfg.Generate.Target)
	assert.Equal(t, "localhost:6379", cfg.Store.Redis.Addr)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "strata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  backend: sqlite
  path: rules.db
cache:
  size: 50
  ttl: 90s
render:
  engine: go
`), 0o644))

	t.Setenv("STRATA_CACHE_SIZE", "75")
	t.Setenv("STRATA_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "rules.db", cfg.Store.Path)
	assert.Equal(t, 75, cfg.Cache.Size, "environment wins over the file")
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
	assert.Equal(t, "go", cfg.Render.Engine)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return *cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "etcd" }, "store.backend"},
		{"file backend without path", func(c *Config) { c.Store.Backend = BackendYAML }, "store.path"},
		{"redis without addr", func(c *Config) { c.Store.Backend = BackendRedis; c.Store.Redis.Addr = "" }, "store.redis.addr"},
		{"zero cache", func(c *Config) { c.Cache.Size = 0 }, "cache.size"},
		{"zero ttl", func(c *Config) { c.Cache.TTL = 0 }, "cache.ttl"},
		{"no parallelism", func(c *Config) { c.Resolver.Parallelism = 0 }, "resolver.parallelism"},
		{"unknown engine", func(c *Config) { c.Render.Engine = "mustache" }, "render.engine"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
