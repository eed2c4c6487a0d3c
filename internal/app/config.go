package app

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMySQL    = "mysql"
	StoreRedis    = "redis"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "CODEVAULT_"

// Config holds runtime settings for the CodeVault server.
type Config struct {
	HTTPAddr        string        `yaml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`

	Secret        string        `yaml:"secret"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	SigningMethod string        `yaml:"signing_method"`
	HashAlgorithm string        `yaml:"hash_algorithm"`
	BcryptCost    int           `yaml:"bcrypt_cost"`

	// Store selects the backend: memory, postgres, mysql or redis.
	Store       string `yaml:"store"`
	DSN         string `yaml:"dsn"`
	TablePrefix string `yaml:"table_prefix"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// RateLimiter selects the limiter backend: memory or redis.
	RateLimiter string `yaml:"rate_limiter"`

	// LoginRate requests per LoginWindow are allowed to /login per client IP.
	LoginRate   int           `yaml:"login_rate"`
	LoginWindow time.Duration `yaml:"login_window"`

	// TrustProxyHeaders keys the /login limiter on X-Forwarded-For and
	// X-Real-IP instead of RemoteAddr. Enable only behind a proxy that sets them.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`

	// LoginAttempts logins per AttemptWindow are allowed per identifier.
	LoginAttempts int           `yaml:"login_attempts"`
	AttemptWindow time.Duration `yaml:"attempt_window"`

	KafkaBrokers     []string `yaml:"kafka_brokers"`
	KafkaTopicPrefix string   `yaml:"kafka_topic_prefix"`

	ElasticAddresses []string `yaml:"elastic_addresses"`
	ElasticIndex     string   `yaml:"elastic_index"`

	GaugeInterval  time.Duration `yaml:"gauge_interval"`
	HealthInterval time.Duration `yaml:"health_interval"`
}

// LoadDefaults populates c with development defaults. The secret is left
// empty so a server never starts with a well-known key.
func (c *Config) LoadDefaults() {
	c.HTTPAddr = ":8000"
	c.ShutdownTimeout = 10 * time.Second
	c.LogLevel = "info"
	c.LogFormat = "json"
	c.TokenTTL = 60 * time.Minute
	c.SigningMethod = "HS256"
	c.HashAlgorithm = "bcrypt"
	c.BcryptCost = 12
	c.Store = StoreMemory
	c.TablePrefix = "codevault_"
	c.RedisAddr = "localhost:6379"
	c.RateLimiter = StoreMemory
	c.LoginRate = 20
	c.LoginWindow = time.Minute
	c.LoginAttempts = 10
	c.AttemptWindow = 15 * time.Minute
	c.KafkaTopicPrefix = "codevault"
	c.ElasticIndex = "codevault-snippets"
	c.GaugeInterval = time.Minute
	c.HealthInterval = 30 * time.Second
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store {
	case StoreMemory, StoreRedis:
	case StorePostgres, StoreMySQL:
		if c.DSN == "" {
			errs = append(errs, fmt.Errorf("store %q requires a dsn", c.Store))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store %q", c.Store))
	}
	switch c.RateLimiter {
	case StoreMemory, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown rate limiter %q", c.RateLimiter))
	}
	if c.LoginRate <= 0 || c.LoginWindow <= 0 {
		errs = append(errs, errors.New("login rate and window must be positive"))
	}
	if c.Secret == "" {
		errs = append(errs, errors.New("secret is required"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}
	return errors.Join(errs...)
}

// LoadConfig builds a Config from defaults, then the YAML file named by
// -config, then the .env file named by -env-file and CODEVAULT_* variables,
// and finally the remaining command-line flags.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	fs, fv := newFlagSet(cfg)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fv.configFile != "" {
		if err := loadYAML(cfg, fv.configFile); err != nil {
			return nil, err
		}
	}

	if err := loadDotEnv(fv.envFile); err != nil {
		return nil, err
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}

	// Flags win, but only those given explicitly.
	if err := fv.apply(fs, cfg); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

func loadYAML(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()
	return decodeYAML(cfg, f)
}

func decodeYAML(cfg *Config, r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config file: %w", err)
	}
	return nil
}

// loadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing default .env is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		path = ".env"
		if _, err := os.Stat(path); err != nil {
			return nil
		}
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("HTTP_ADDR", &cfg.HTTPAddr)
	e.duration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)
	e.str("LOG_LEVEL", &cfg.LogLevel)
	e.str("LOG_FORMAT", &cfg.LogFormat)
	e.str("SECRET", &cfg.Secret)
	e.duration("TOKEN_TTL", &cfg.TokenTTL)
	e.str("SIGNING_METHOD", &cfg.SigningMethod)
	e.str("HASH_ALGORITHM", &cfg.HashAlgorithm)
	e.integer("BCRYPT_COST", &cfg.BcryptCost)
	e.str("STORE", &cfg.Store)
	e.str("DSN", &cfg.DSN)
	e.str("TABLE_PREFIX", &cfg.TablePrefix)
	e.str("REDIS_ADDR", &cfg.RedisAddr)
	e.str("REDIS_PASSWORD", &cfg.RedisPassword)
	e.integer("REDIS_DB", &cfg.RedisDB)
	e.str("RATE_LIMITER", &cfg.RateLimiter)
	e.integer("LOGIN_RATE", &cfg.LoginRate)
	e.duration("LOGIN_WINDOW", &cfg.LoginWindow)
	e.boolean("TRUST_PROXY_HEADERS", &cfg.TrustProxyHeaders)
	e.integer("LOGIN_ATTEMPTS", &cfg.LoginAttempts)
	e.duration("ATTEMPT_WINDOW", &cfg.AttemptWindow)
	e.list("KAFKA_BROKERS", &cfg.KafkaBrokers)
	e.str("KAFKA_TOPIC_PREFIX", &cfg.KafkaTopicPrefix)
	e.list("ELASTIC_ADDRESSES", &cfg.ElasticAddresses)
	e.str("ELASTIC_INDEX", &cfg.ElasticIndex)
	e.duration("GAUGE_INTERVAL", &cfg.GaugeInterval)
	e.duration("HEALTH_INTERVAL", &cfg.HealthInterval)

	return errors.Join(e.errs...)
}

type flagValues struct {
	configFile string
	envFile    string

	httpAddr    string
	logLevel    string
	logFormat   string
	store       string
	dsn         string
	redisAddr   string
	rateLimiter string
	kafka       string
	elastic     string
	tokenTTL    time.Duration
}

func newFlagSet(cfg *Config) (*flag.FlagSet, *flagValues) {
	fv := &flagValues{}
	fs := flag.NewFlagSet("codevault", flag.ContinueOnError)

	fs.StringVar(&fv.configFile, "config", "", "path to a YAML config file")
	fs.StringVar(&fv.envFile, "env-file", "", "path to a .env file")
	fs.StringVar(&fv.httpAddr, "addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&fv.logLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&fv.logFormat, "log-format", cfg.LogFormat, "log format (json, text)")
	fs.StringVar(&fv.store, "store", cfg.Store, "store backend (memory, postgres, mysql, redis)")
	fs.StringVar(&fv.dsn, "dsn", cfg.DSN, "SQL data source name")
	fs.StringVar(&fv.redisAddr, "redis-addr", cfg.RedisAddr, "Redis address")
	fs.StringVar(&fv.rateLimiter, "rate-limiter", cfg.RateLimiter, "rate limiter backend (memory, redis)")
	fs.StringVar(&fv.kafka, "kafka-brokers", "", "comma-separated Kafka brokers")
	fs.StringVar(&fv.elastic, "elastic-addresses", "", "comma-separated Elasticsearch addresses")
	fs.DurationVar(&fv.tokenTTL, "token-ttl", cfg.TokenTTL, "access token lifetime")

	return fs, fv
}

func (fv *flagValues) apply(fs *flag.FlagSet, cfg *Config) error {
	var err error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.HTTPAddr = fv.httpAddr
		case "log-level":
			cfg.LogLevel = fv.logLevel
		case "log-format":
			cfg.LogFormat = fv.logFormat
		case "store":
			cfg.Store = fv.store
		case "dsn":
			cfg.DSN = fv.dsn
		case "redis-addr":
			cfg.RedisAddr = fv.redisAddr
		case "rate-limiter":
			cfg.RateLimiter = fv.rateLimiter
		case "kafka-brokers":
			cfg.KafkaBrokers = splitList(fv.kafka)
		case "elastic-addresses":
			cfg.ElasticAddresses = splitList(fv.elastic)
		case "token-ttl":
			if fv.tokenTTL <= 0 {
				err = fmt.Errorf("token-ttl must be positive, got %s", fv.tokenTTL)
				return
			}
			cfg.TokenTTL = fv.tokenTTL
		}
	})
	return err
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
