package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/database/memory"
	"github.com/nfrund/roomchat/internal/pubsub"
	"github.com/nfrund/roomchat/internal/server"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		AppAddr:            ":0",
		AppBaseURL:         "http://chat.test/",
		SessionSecret:      "a-very-secret-key-for-testing-!",
		Backend:            config.BackendMemory,
		SubscriptionBuffer: 16,
		MessageRateLimit:   1000,
	}
}

// setupIntegrationTest starts a server on the memory backend behind httptest.
func setupIntegrationTest(t *testing.T) (*server.Server, *memory.Store, *httptest.Server) {
	t.Helper()
	cfg := testConfig()
	bus := pubsub.NewWatermillBridge()
	store := memory.New(bus, cfg)

	s, err := server.New(context.Background(), cfg, server.WithBackend(store, bus))
	require.NoError(t, err)

	ts := httptest.NewServer(s.E)
	t.Cleanup(func() {
		ts.Close()
		_ = s.Shutdown(context.Background())
	})
	return s, store, ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

// noRedirect is an http.Client that returns redirects instead of following them.
func noRedirect() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}
