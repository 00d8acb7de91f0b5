package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/nfrund/roomchat/internal/storage"
	"github.com/nfrund/roomchat/internal/transcript"
	"github.com/spf13/cobra"
)

// exportStore opens the store transcripts are written to.
var exportStore = func() storage.Store { return storage.NewOSStore("") }

func newExportCmd(connect ConnectFunc) *cobra.Command {
	var out, format string
	cmd := &cobra.Command{
		Use:   "export <room>",
		Short: "Write a room transcript to a file",
		Long: `Write every message of a room to a file as plain text or JSON.

Examples:
  roomchat export k3x9q2 --out standup.txt
  roomchat export k3x9q2 --out standup.json --format json`,
		Args: cobra.ExactArgs(1),
		RunE: withClient(connect, func(cmd *cobra.Command, args []string, c *Client) error {
			f, err := transcript.ParseFormat(format)
			if err != nil {
				return err
			}
			path := out
			if path == "" {
				path = "transcript.txt"
				if f == transcript.FormatJSON {
					path = "transcript.json"
				}
			}
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}

			exporter := transcript.NewExporter(c.Rooms, c.Log, exportStore(), nil)
			n, err := exporter.Export(cmd.Context(), args[0], abs, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d messages to %s\n", n, abs)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default transcript.txt or transcript.json)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "transcript format: text or json")
	return cmd
}
