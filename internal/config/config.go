package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config represents application configuration
type Config struct {
	Server     ServerConfig
	Store      StoreConfig
	Lock       LockConfig
	Events     EventsConfig
	Auth       AuthConfig
	Logging    LoggingConfig
	Assignment AssignmentConfig
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StoreConfig represents persistence configuration
type StoreConfig struct {
	Driver         string
	DatabaseURL    string
	MaxConnections int
	MaxIdleTime    time.Duration
	ConnectTimeout time.Duration
}

// LockConfig represents Redis lock configuration
type LockConfig struct {
	Enabled  bool
	RedisURL string
	TTL      time.Duration
}

// EventsConfig represents RabbitMQ publishing configuration
type EventsConfig struct {
	Enabled  bool
	AMQPURL  string
	Exchange string
}

// AuthConfig represents bearer token configuration
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json, text
}

// AssignmentConfig tunes the assignment engine
type AssignmentConfig struct {
	DefaultBatchLimit int
	MaxBatchLimit     int
	// MirrorExternalLoad increments/decrements the external load together
	// with every roster addition/removal. Load is external load plus roster
	// size, so with mirroring on each assignment counts twice against
	// MaxCaseload and a batch can leave officers above capacity. It is on by
	// default for stores where the external load already tracks the roster;
	// the audit reports the excess as capacity overruns. Turn it off to keep
	// every officer within MaxCaseload.
	MirrorExternalLoad bool
	OptimisticLocking  bool
	SystemActor        string
}

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrMissingJWTSecret   = errors.New("JWT_SECRET is required when AUTH_ENABLED is set")
	ErrMissingRedisURL    = errors.New("REDIS_URL is required when LOCK_ENABLED is set")
	ErrMissingAMQPURL     = errors.New("AMQP_URL is required when EVENTS_ENABLED is set")
	ErrInvalidStoreDriver = errors.New("STORE_DRIVER must be postgres or memory")
	ErrInvalidBatchLimit  = errors.New("batch limits must be positive and default must not exceed max")
)

// Load loads configuration from the environment, reading an optional .env
// first, and validates it
func Load() (*Config, error) {
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads configuration without validating it, so that callers can
// apply overrides first
func FromEnv() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host:         getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvOrDefault("SERVER_PORT", "8080"),
			Environment:  getEnvOrDefault("ENV", "development"),
			ReadTimeout:  getEnvOrDefaultDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvOrDefaultDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:  getEnvOrDefaultDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Store: StoreConfig{
			Driver:         getEnvOrDefault("STORE_DRIVER", StoreDriverPostgres),
			DatabaseURL:    os.Getenv("DATABASE_URL"),
			MaxConnections: getEnvOrDefaultInt("DB_MAX_CONNECTIONS", 20),
			MaxIdleTime:    getEnvOrDefaultDuration("DB_MAX_IDLE_TIME", 30*time.Minute),
			ConnectTimeout: getEnvOrDefaultDuration("DB_CONNECT_TIMEOUT", 5*time.Second),
		},
		Lock: LockConfig{
			Enabled:  getEnvOrDefaultBool("LOCK_ENABLED", false),
			RedisURL: os.Getenv("REDIS_URL"),
			TTL:      getEnvOrDefaultDuration("LOCK_TTL", 10*time.Minute),
		},
		Events: EventsConfig{
			Enabled:  getEnvOrDefaultBool("EVENTS_ENABLED", false),
			AMQPURL:  os.Getenv("AMQP_URL"),
			Exchange: getEnvOrDefault("EVENTS_EXCHANGE", "collections"),
		},
		Auth: AuthConfig{
			Enabled:   getEnvOrDefaultBool("AUTH_ENABLED", false),
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		Assignment: AssignmentConfig{
			DefaultBatchLimit:  getEnvOrDefaultInt("ASSIGNMENT_DEFAULT_BATCH_LIMIT", 500),
			MaxBatchLimit:      getEnvOrDefaultInt("ASSIGNMENT_MAX_BATCH_LIMIT", 5000),
			MirrorExternalLoad: getEnvOrDefaultBool("ASSIGNMENT_MIRROR_EXTERNAL_LOAD", true),
			OptimisticLocking:  getEnvOrDefaultBool("ASSIGNMENT_OPTIMISTIC_LOCKING", true),
			SystemActor:        getEnvOrDefault("ASSIGNMENT_SYSTEM_ACTOR", "system"),
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverPostgres:
		if c.Store.DatabaseURL == "" {
			return ErrMissingDatabaseURL
		}
	case StoreDriverMemory:
	default:
		return ErrInvalidStoreDriver
	}

	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return ErrMissingJWTSecret
	}
	if c.Lock.Enabled && c.Lock.RedisURL == "" {
		return ErrMissingRedisURL
	}
	if c.Events.Enabled && c.Events.AMQPURL == "" {
		return ErrMissingAMQPURL
	}

	a := c.Assignment
	if a.DefaultBatchLimit <= 0 || a.MaxBatchLimit <= 0 || a.DefaultBatchLimit > a.MaxBatchLimit {
		return ErrInvalidBatchLimit
	}
	return nil
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvOrDefaultDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		// interpret as seconds if numeric, else parse like Go duration
		if n, err := strconv.Atoi(value); err == nil {
			return time.Duration(n) * time.Second
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return defaultValue
		}
		return d
	}
	return defaultValue
}
