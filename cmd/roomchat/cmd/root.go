package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/nfrund/roomchat/internal/backend"
	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/livefeed"
	"github.com/nfrund/roomchat/internal/logging"
	"github.com/nfrund/roomchat/internal/messagelog"
	"github.com/nfrund/roomchat/internal/pubsub"
	"github.com/nfrund/roomchat/internal/room"
	"github.com/spf13/cobra"
)

// Client is what the terminal commands talk to: a connected backend and the
// services built on it.
type Client struct {
	Backend domain.Backend
	Bus     pubsub.Bus
	Rooms   *room.Manager
	Log     *messagelog.Log
	Live    *livefeed.Channel
}

// NewClient wires the services over a connected backend. The client takes
// ownership of both arguments.
func NewClient(b domain.Backend, bus pubsub.Bus, baseURL string) *Client {
	return &Client{
		Backend: b,
		Bus:     bus,
		Rooms:   room.NewManager(b.Rooms(), room.WithBaseURL(baseURL)),
		Log:     messagelog.New(b.Messages(), nil),
		Live:    livefeed.New(b.Feed(), nil),
	}
}

// Close releases subscriptions, the backend and the bus.
func (c *Client) Close(ctx context.Context) error {
	return errors.Join(c.Live.Close(), c.Backend.Close(ctx), c.Bus.Close())
}

// ConnectFunc opens a Client. Tests replace it with one over the memory backend.
type ConnectFunc func(ctx context.Context) (*Client, error)

// connectFromEnv builds a Client from the environment configuration.
func connectFromEnv(ctx context.Context) (*Client, error) {
	cfg := config.New()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Backend == config.BackendMemory {
		slog.Warn("Memory backend selected: rooms and messages vanish when this command exits")
	}

	bus := pubsub.NewWatermillBridge(pubsub.WithLogger(slog.Default()))
	b, err := backend.New(cfg, bus)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	if err := b.Connect(ctx); err != nil {
		_ = bus.Close()
		return nil, err
	}
	return NewClient(b, bus, cfg.AppBaseURL), nil
}

// withClient adapts a client command to cobra's RunE. The client is closed
// when the command returns, whatever the outcome.
func withClient(connect ConnectFunc, run func(cmd *cobra.Command, args []string, c *Client) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		c, err := connect(cmd.Context())
		if err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		defer func() {
			err = errors.Join(err, c.Close(context.WithoutCancel(cmd.Context())))
		}()
		return run(cmd, args, c)
	}
}

// NewRootCmd builds the command tree. Client commands open their connection
// through connect.
func NewRootCmd(connect ConnectFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "roomchat",
		Short: "RoomChat server and terminal client",
		Long: `RoomChat is a room-scoped realtime chat.

Run "roomchat serve" to start the web server, or use the client commands to
create rooms, post messages and follow a room from the terminal.

Use "roomchat [command] --help" for more information about a specific command.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newCreateCmd(connect),
		newJoinCmd(connect),
		newHistoryCmd(connect),
		newSendCmd(connect),
		newTailCmd(connect),
		newChatCmd(connect),
		newExportCmd(connect),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command with signal-aware cancellation.
func Execute() {
	logging.NewTo(os.Stderr, envOr("LOG_LEVEL", "warn"))

	ctx, stop := signalContext()
	defer stop()

	if err := NewRootCmd(connectFromEnv).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
