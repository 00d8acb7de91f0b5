package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names accepted by CHAT_BACKEND.
const (
	BackendSurreal  = "surreal"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Provider is the read-only view of the configuration that the rest of the
// application depends on. Tests substitute their own implementation.
type Provider interface {
	GetAppAddr() string
	GetAppBaseURL() string
	GetSessionSecret() string

	GetBackend() string

	GetDBURL() string
	GetDBNs() string
	GetDBDb() string
	GetDBUser() string
	GetDBPass() string
	GetDBQueryTimeout() time.Duration
	GetDBExecuteTimeout() time.Duration

	GetPostgresURL() string

	GetRedisURL() string
	GetRoomCacheTTL() time.Duration

	GetSubscriptionBuffer() int
	GetMessageRateLimit() int

	GetTracingEnabled() bool
	GetTracingServiceName() string
	GetTracingZipkinURL() string
}

// Config holds all configuration for the application.
type Config struct {
	AppAddr       string
	AppBaseURL    string
	SessionSecret string

	Backend string

	DBUrl            string
	DBNs             string
	DBDb             string
	DBUser           string
	DBPass           string
	DBQueryTimeout   time.Duration
	DBExecuteTimeout time.Duration

	PostgresURL string

	RedisURL     string
	RoomCacheTTL time.Duration

	SubscriptionBuffer int
	MessageRateLimit   int

	// Bus tracing, exported to Zipkin when enabled.
	TracingEnabled     bool
	TracingServiceName string
	TracingZipkinURL   string
}

// New loads configuration from the environment, reading a .env file first
// when one is present. Missing values fall back to development defaults;
// call Validate before using the result to open a backend.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	return &Config{
		AppAddr:       getEnv("APP_ADDR", ":8080"),
		AppBaseURL:    getEnv("APP_BASE_URL", "http://localhost:8080/"),
		SessionSecret: getEnv("SESSION_SECRET", "roomchat-dev-secret"),

		Backend: strings.ToLower(getEnv("CHAT_BACKEND", BackendSurreal)),

		DBUrl:            os.Getenv("SURREAL_URL"),
		DBUser:           os.Getenv("SURREAL_USER"),
		DBPass:           os.Getenv("SURREAL_PASS"),
		DBNs:             os.Getenv("SURREAL_NS"),
		DBDb:             os.Getenv("SURREAL_DB"),
		DBQueryTimeout:   getDuration("DB_QUERY_TIMEOUT", 5*time.Second),
		DBExecuteTimeout: getDuration("DB_EXECUTE_TIMEOUT", 10*time.Second),

		PostgresURL: os.Getenv("POSTGRES_URL"),

		RedisURL:     os.Getenv("REDIS_URL"),
		RoomCacheTTL: getDuration("ROOM_CACHE_TTL", 24*time.Hour),

		SubscriptionBuffer: getInt("SUBSCRIPTION_BUFFER", 64),
		MessageRateLimit:   getInt("MESSAGE_RATE_LIMIT", 30),

		TracingEnabled:     getBool("PUBSUB_TRACING_ENABLED", false),
		TracingServiceName: getEnv("PUBSUB_TRACING_SERVICE_NAME", "roomchat"),
		TracingZipkinURL:   getEnv("PUBSUB_TRACING_ZIPKIN_URL", "http://localhost:9411/api/v2/spans"),
	}
}

// Validate reports every missing or inconsistent setting for the selected backend.
func (c *Config) Validate() error {
	var errs []error

	switch c.Backend {
	case BackendSurreal:
		if c.DBUrl == "" || c.DBNs == "" || c.DBDb == "" {
			errs = append(errs, errors.New("SURREAL_URL, SURREAL_NS and SURREAL_DB are required for the surreal backend"))
		}
	case BackendPostgres:
		if c.PostgresURL == "" {
			errs = append(errs, errors.New("POSTGRES_URL is required for the postgres backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown CHAT_BACKEND %q", c.Backend))
	}

	if c.AppBaseURL == "" {
		errs = append(errs, errors.New("APP_BASE_URL must not be empty"))
	}
	if c.SubscriptionBuffer <= 0 {
		errs = append(errs, errors.New("SUBSCRIPTION_BUFFER must be positive"))
	}
	if c.MessageRateLimit <= 0 {
		errs = append(errs, errors.New("MESSAGE_RATE_LIMIT must be positive"))
	}
	if c.TracingEnabled && c.TracingZipkinURL == "" {
		errs = append(errs, errors.New("PUBSUB_TRACING_ZIPKIN_URL is required when tracing is enabled"))
	}

	return errors.Join(errs...)
}

func (c *Config) GetAppAddr() string       { return c.AppAddr }
func (c *Config) GetAppBaseURL() string    { return c.AppBaseURL }
func (c *Config) GetSessionSecret() string { return c.SessionSecret }
func (c *Config) GetBackend() string       { return c.Backend }

func (c *Config) GetDBURL() string                  { return c.DBUrl }
func (c *Config) GetDBNs() string                   { return c.DBNs }
func (c *Config) GetDBDb() string                   { return c.DBDb }
func (c *Config) GetDBUser() string                 { return c.DBUser }
func (c *Config) GetDBPass() string                 { return c.DBPass }
func (c *Config) GetDBQueryTimeout() time.Duration   { return c.DBQueryTimeout }
func (c *Config) GetDBExecuteTimeout() time.Duration { return c.DBExecuteTimeout }

func (c *Config) GetPostgresURL() string { return c.PostgresURL }

func (c *Config) GetRedisURL() string            { return c.RedisURL }
func (c *Config) GetRoomCacheTTL() time.Duration { return c.RoomCacheTTL }

func (c *Config) GetSubscriptionBuffer() int { return c.SubscriptionBuffer }
func (c *Config) GetMessageRateLimit() int   { return c.MessageRateLimit }

func (c *Config) GetTracingEnabled() bool       { return c.TracingEnabled }
func (c *Config) GetTracingServiceName() string { return c.TracingServiceName }
func (c *Config) GetTracingZipkinURL() string   { return c.TracingZipkinURL }

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Invalid integer for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Invalid boolean for %s=%q, using default %t", key, v, fallback)
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Invalid duration for %s=%q, using default %s", key, v, fallback)
		return fallback
	}
	return d
}
