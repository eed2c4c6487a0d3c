package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-at-least-32-bytes-long"

func TestConfig_LoadDefaults(t *testing.T) {
	var cfg Config
	cfg.LoadDefaults()

	assert.Equal(t, ":8000", cfg.HTTPAddr)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, 60*time.Minute, cfg.TokenTTL)
	assert.Equal(t, "HS256", cfg.SigningMethod)
	assert.Empty(t, cfg.Secret)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing secret", func(c *Config) { c.Secret = "" }, "secret is required"},
		{"unknown store", func(c *Config) { c.Store = "sqlite" }, `unknown store "sqlite"`},
		{"postgres without dsn", func(c *Config) { c.Store = StorePostgres }, "requires a dsn"},
		{"unknown limiter", func(c *Config) { c.RateLimiter = "etcd" }, "unknown rate limiter"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			cfg.LoadDefaults()
			cfg.Secret = testSecret
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDecodeYAML(t *testing.T) {
	var cfg Config
	cfg.LoadDefaults()

	err := decodeYAML(&cfg, strings.NewReader(`
http_addr: ":9090"
token_ttl: 30m
store: redis
kafka_brokers: ["k1:9092", "k2:9092"]
`))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Minute, cfg.TokenTTL)
	assert.Equal(t, StoreRedis, cfg.Store)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "HS256", cfg.SigningMethod, "unset keys keep their defaults")
}

func TestDecodeYAML_UnknownField(t *testing.T) {
	var cfg Config
	err := decodeYAML(&cfg, strings.NewReader("no_such_field: 1\n"))
	assert.Error(t, err)
}

func TestDecodeYAML_Empty(t *testing.T) {
	var cfg Config
	cfg.LoadDefaults()
	require.NoError(t, decodeYAML(&cfg, strings.NewReader("")))
	assert.Equal(t, ":8000", cfg.HTTPAddr)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CODEVAULT_SECRET":              testSecret,
		"CODEVAULT_LOGIN_RATE":          "3",
		"CODEVAULT_TOKEN_TTL":           "5m",
		"CODEVAULT_ELASTIC_ADDRESSES":   "http://es1:9200, http://es2:9200",
		"CODEVAULT_LOG_LEVEL":           "  ",
		"CODEVAULT_TRUST_PROXY_HEADERS": "true",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	var cfg Config
	cfg.LoadDefaults()
	require.NoError(t, applyEnv(&cfg, lookup))

	assert.Equal(t, testSecret, cfg.Secret)
	assert.Equal(t, 3, cfg.LoginRate)
	assert.Equal(t, 5*time.Minute, cfg.TokenTTL)
	assert.Equal(t, []string{"http://es1:9200", "http://es2:9200"}, cfg.ElasticAddresses)
	assert.Equal(t, "info", cfg.LogLevel, "blank values are ignored")
	assert.True(t, cfg.TrustProxyHeaders)
}

func TestApplyEnv_Invalid(t *testing.T) {
	env := map[string]string{
		"CODEVAULT_LOGIN_RATE":          "many",
		"CODEVAULT_TOKEN_TTL":           "soon",
		"CODEVAULT_TRUST_PROXY_HEADERS": "maybe",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	var cfg Config
	cfg.LoadDefaults()
	err := applyEnv(&cfg, lookup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CODEVAULT_LOGIN_RATE")
	assert.Contains(t, err.Error(), "CODEVAULT_TOKEN_TTL")
	assert.Contains(t, err.Error(), "CODEVAULT_TRUST_PROXY_HEADERS")
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "codevault.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("http_addr: \":7000\"\nlog_level: debug\nstore: memory\n"), 0o600))

	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("CODEVAULT_SECRET="+testSecret+"\nCODEVAULT_LOG_LEVEL=warn\n"), 0o600))

	t.Setenv("CODEVAULT_HTTP_ADDR", ":7500")
	t.Cleanup(func() {
		os.Unsetenv("CODEVAULT_SECRET")
		os.Unsetenv("CODEVAULT_LOG_LEVEL")
	})

	cfg, err := LoadConfig([]string{"-config", yamlPath, "-env-file", envPath, "-addr", ":7777"})
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.HTTPAddr, "flags override env and file")
	assert.Equal(t, "warn", cfg.LogLevel, "env overrides file")
	assert.Equal(t, testSecret, cfg.Secret)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
	assert.Nil(t, splitList(""))
}
