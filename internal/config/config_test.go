package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	t.Setenv("CHAT_BACKEND", "")
	t.Setenv("APP_ADDR", "")
	t.Setenv("DB_QUERY_TIMEOUT", "")
	t.Setenv("SUBSCRIPTION_BUFFER", "")

	cfg := New()

	assert.Equal(t, BackendSurreal, cfg.GetBackend())
	assert.Equal(t, ":8080", cfg.GetAppAddr())
	assert.Equal(t, 5*time.Second, cfg.GetDBQueryTimeout())
	assert.Equal(t, 64, cfg.GetSubscriptionBuffer())
}

func TestNewReadsEnvironment(t *testing.T) {
	t.Setenv("CHAT_BACKEND", "Memory")
	t.Setenv("APP_BASE_URL", "https://chat.example.com/app")
	t.Setenv("ROOM_CACHE_TTL", "90m")
	t.Setenv("MESSAGE_RATE_LIMIT", "120")

	cfg := New()

	assert.Equal(t, BackendMemory, cfg.GetBackend())
	assert.Equal(t, "https://chat.example.com/app", cfg.GetAppBaseURL())
	assert.Equal(t, 90*time.Minute, cfg.GetRoomCacheTTL())
	assert.Equal(t, 120, cfg.GetMessageRateLimit())
}

func TestNewIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("SUBSCRIPTION_BUFFER", "lots")
	t.Setenv("DB_EXECUTE_TIMEOUT", "soon")

	cfg := New()

	assert.Equal(t, 64, cfg.GetSubscriptionBuffer())
	assert.Equal(t, 10*time.Second, cfg.GetDBExecuteTimeout())
}

func TestNewReadsTracingSettings(t *testing.T) {
	t.Setenv("PUBSUB_TRACING_ENABLED", "")
	t.Setenv("PUBSUB_TRACING_SERVICE_NAME", "")
	t.Setenv("PUBSUB_TRACING_ZIPKIN_URL", "")

	cfg := New()
	assert.False(t, cfg.GetTracingEnabled())
	assert.Equal(t, "roomchat", cfg.GetTracingServiceName())
	assert.Equal(t, "http://localhost:9411/api/v2/spans", cfg.GetTracingZipkinURL())

	t.Setenv("PUBSUB_TRACING_ENABLED", "true")
	t.Setenv("PUBSUB_TRACING_SERVICE_NAME", "roomchat-test")
	t.Setenv("PUBSUB_TRACING_ZIPKIN_URL", "http://zipkin:9411/api/v2/spans")

	cfg = New()
	assert.True(t, cfg.GetTracingEnabled())
	assert.Equal(t, "roomchat-test", cfg.GetTracingServiceName())
	assert.Equal(t, "http://zipkin:9411/api/v2/spans", cfg.GetTracingZipkinURL())

	t.Setenv("PUBSUB_TRACING_ENABLED", "not-a-bool")
	assert.False(t, New().GetTracingEnabled())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			AppBaseURL:         "http://localhost:8080/",
			SubscriptionBuffer: 8,
			MessageRateLimit:   10,
		}
	}

	t.Run("memory needs nothing else", func(t *testing.T) {
		cfg := base()
		cfg.Backend = BackendMemory
		require.NoError(t, cfg.Validate())
	})

	t.Run("surreal requires connection settings", func(t *testing.T) {
		cfg := base()
		cfg.Backend = BackendSurreal
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "SURREAL_URL")

		cfg.DBUrl, cfg.DBNs, cfg.DBDb = "ws://localhost:8000/rpc", "chat", "chat"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("postgres requires a url", func(t *testing.T) {
		cfg := base()
		cfg.Backend = BackendPostgres
		assert.ErrorContains(t, cfg.Validate(), "POSTGRES_URL")
	})

	t.Run("tracing needs a collector url", func(t *testing.T) {
		cfg := base()
		cfg.Backend = BackendMemory
		cfg.TracingEnabled = true
		assert.ErrorContains(t, cfg.Validate(), "PUBSUB_TRACING_ZIPKIN_URL")

		cfg.TracingZipkinURL = "http://zipkin:9411/api/v2/spans"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown backend and bad limits are all reported", func(t *testing.T) {
		cfg := base()
		cfg.Backend = "mongo"
		cfg.SubscriptionBuffer = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown CHAT_BACKEND "mongo"`)
		assert.Contains(t, err.Error(), "SUBSCRIPTION_BUFFER")
	})
}
