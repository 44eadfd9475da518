// Package config provides runtime configuration values for the service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

type Config struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Log      Log      `yaml:"log"`
	Storage  Storage  `yaml:"storage"`
	Redis    Redis    `yaml:"redis"`
	RabbitMQ RabbitMQ `yaml:"rabbitmq"`
	Auth     Auth     `yaml:"auth"`
	Payment  Payment  `yaml:"payment"`
	CORS     CORS     `yaml:"cors"`
	Orders   Orders   `yaml:"orders"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Storage struct {
	Driver          string        `yaml:"driver"`
	MySQLDSN        string        `yaml:"mysql_dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	Migrate         bool          `yaml:"migrate"`
}

// Redis is optional; without an address order creation falls back to an
// in-process lock.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// RabbitMQ is optional; without a URL events are only logged.
type RabbitMQ struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type Auth struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// Payment.Secret enables signature checks on payment confirmations.
type Payment struct {
	Secret string `yaml:"secret"`
}

type CORS struct {
	AllowOrigins []string `yaml:"allow_origins"`
}

type Orders struct {
	LockTTL time.Duration `yaml:"lock_ttl"`
}

func Default() Config {
	return Config{
		HTTPAddr:        ":8080",
		GRPCAddr:        ":50051",
		ShutdownTimeout: 15 * time.Second,
		Log:             Log{Level: "info", Format: "json"},
		Storage: Storage{
			Driver:          DriverMySQL,
			MySQLDSN:        "root:root@tcp(localhost:3306)/apartment?parseTime=true&loc=UTC",
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
			Migrate:         true,
		},
		Redis:    Redis{PoolSize: 100},
		RabbitMQ: RabbitMQ{Exchange: "apartment.events"},
		CORS:     CORS{AllowOrigins: []string{"*"}},
		Orders:   Orders{LockTTL: 10 * time.Second},
	}
}

// Load collects configuration: defaults, then the YAML file at path (if
// path is not empty), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPAddr = getenv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.GRPCAddr = getenv("GRPC_ADDR", cfg.GRPCAddr)
	cfg.ShutdownTimeout = durenvs("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	cfg.Log.Level = getenv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenv("LOG_FORMAT", cfg.Log.Format)
	cfg.Storage.Driver = getenv("STORAGE_DRIVER", cfg.Storage.Driver)
	cfg.Storage.MySQLDSN = getenv("MYSQL_DSN", cfg.Storage.MySQLDSN)
	cfg.Redis.Addr = getenv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getenv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.RabbitMQ.URL = getenv("RABBITMQ_URL", cfg.RabbitMQ.URL)
	cfg.Auth.JWTSecret = getenv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Payment.Secret = getenv("PAYMENT_SECRET", cfg.Payment.Secret)
	cfg.Orders.LockTTL = durenvms("ORDER_LOCK_TTL_MS", cfg.Orders.LockTTL)
	if v := getenv("CORS_ORIGINS", ""); v != "" {
		cfg.CORS.AllowOrigins = strings.Split(v, ",")
	}
}

func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMySQL:
		if c.Storage.MySQLDSN == "" {
			return errors.New("config: storage.mysql_dsn is required for the mysql driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("config: auth.jwt_secret is required")
	}
	if c.Orders.LockTTL <= 0 {
		return errors.New("config: orders.lock_ttl must be positive")
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durenvms(key string, def time.Duration) time.Duration {
	ms := atoienv(key, int(def/time.Millisecond))
	return time.Duration(ms) * time.Millisecond
}

func durenvs(key string, def time.Duration) time.Duration {
	sec := atoienv(key, int(def/time.Second))
	return time.Duration(sec) * time.Second
}
