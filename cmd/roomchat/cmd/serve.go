package cmd

import (
	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/logging"
	"github.com/nfrund/roomchat/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Long: `Start the HTTP server using the environment configuration.

The backend is chosen with CHAT_BACKEND (surreal, postgres or memory).
The server stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.New()
			cfg := config.New()
			if err := cfg.Validate(); err != nil {
				return err
			}
			s, err := server.New(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return s.Start(cmd.Context())
		},
	}
}
