// Package config handles loading and parsing application configuration.
// It supports two sources (in priority order):
//  1. An environment variable:  CONFIG_PATH=/path/to/config.yaml
//  2. A command-line flag:      --config=/path/to/config.yaml
//
// The parsed values are returned as a *Config pointer. There is no
// package-level copy: main loads it once and hands it to each constructor,
// and nothing mutates it afterwards.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Storage drivers accepted in storage.driver.
const (
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// Config is the root configuration structure.
// Every field maps to a key in the YAML file AND can be overridden
// by the corresponding environment variable (env:"...").
//
// env-required:"true" means the app refuses to start if that value is
// missing — better to crash at boot than to silently use a wrong default.
type Config struct {
	// Env controls log format and verbosity.
	// Valid values: "dev", "staging", "prod"
	Env string `yaml:"env" env:"ENV" env-required:"true"`

	Storage    Storage    `yaml:"storage"`
	Redis      Redis      `yaml:"redis"`
	HTTPServer HTTPServer `yaml:"http_server"`
}

// Storage selects the backend.
type Storage struct {
	// Driver is "redis" (default) or "sqlite".
	Driver string `yaml:"driver" env:"STORAGE_DRIVER" env-default:"redis"`

	// SQLitePath is the .db file used when Driver is "sqlite".
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH" env-default:"storage/records.db"`
}

// Redis holds the connection parameters for the ranked record store.
type Redis struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`

	// KeyPrefix is prepended to a record id to form its hash key. An empty
	// YAML value falls back to the default; set REDIS_KEY_PREFIX="" to key
	// hashes by the bare id.
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"student:"`

	// RankKey names the sorted set that ranks ids by score.
	RankKey string `yaml:"rank_key" env:"REDIS_RANK_KEY" env-default:"students:rank"`

	// OpTimeout bounds every store call, including the transaction.
	OpTimeout   time.Duration `yaml:"op_timeout" env:"REDIS_OP_TIMEOUT" env-default:"3s"`
	DialTimeout time.Duration `yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" env-default:"2s"`
	PoolSize    int           `yaml:"pool_size" env:"REDIS_POOL_SIZE" env-default:"10"`
}

// Addr returns host:port for the Redis client.
func (r Redis) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// HTTPServer holds settings specific to the HTTP server.
// Nested under http_server: in the YAML file.
type HTTPServer struct {
	// Addr is the TCP address the server listens on, e.g. "localhost:8082".
	Addr string `yaml:"address" env:"HTTP_SERVER_ADDR" env-required:"true"`

	// RequestTimeout is the deadline given to each request's context.
	RequestTimeout time.Duration `yaml:"request_timeout" env:"HTTP_REQUEST_TIMEOUT" env-default:"5s"`

	// RateLimit is the sustained requests per second; RateBurst the bucket.
	RateLimit float64 `yaml:"rate_limit" env:"HTTP_RATE_LIMIT" env-default:"100"`
	RateBurst int     `yaml:"rate_burst" env:"HTTP_RATE_BURST" env-default:"200"`
}

// Load reads the YAML file at path, applies env overrides and defaults,
// and checks the result.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	// cleanenv.ReadConfig reads the YAML file and populates the struct.
	// It also reads any env:"..." tagged fields from the environment,
	// fills env-default values and enforces env-required:"true".
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverRedis, DriverSQLite:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Redis.OpTimeout <= 0 {
		return errors.New("redis.op_timeout must be positive")
	}
	// A rank key inside the hash namespace could be overwritten by a record
	// whose id happens to spell the rest of it. With no prefix every key is
	// in that namespace, so only a non-empty prefix is checked.
	if c.Redis.KeyPrefix != "" && strings.HasPrefix(c.Redis.RankKey, c.Redis.KeyPrefix) {
		return fmt.Errorf("redis.rank_key %q must not start with redis.key_prefix %q",
			c.Redis.RankKey, c.Redis.KeyPrefix)
	}
	return nil
}

// MustLoad reads, validates, and returns the application config.
//
// The name "MustLoad" follows a Go convention: functions prefixed with
// "Must" are allowed to panic/fatal on failure. Callers do not need to
// check a returned error — if this function returns, the config is valid.
func MustLoad() *Config {
	var configPath string

	// ── Source 1: environment variable ───────────────────────────────
	configPath = os.Getenv("CONFIG_PATH")

	// ── Source 2: command-line flag ───────────────────────────────────
	//   go run ./cmd/records-api --config=config/local.yaml
	if configPath == "" {
		flags := flag.String("config", "", "Path to the configuration YAML file")
		flag.Parse()
		configPath = *flags
	}

	// Neither source provided a path — we cannot continue.
	if configPath == "" {
		log.Fatal("config path is not set: use --config flag or CONFIG_PATH env var")
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	return cfg
}
