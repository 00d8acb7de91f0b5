package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/nfrund/roomchat/internal/domain"
	"github.com/spf13/cobra"
)

func newCreateCmd(connect ConnectFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "create [name]",
		Short: "Create a room and print its share link",
		Long: `Create a new room. Words after "create" form the display name; without
them the room gets the default name.

Examples:
  roomchat create
  roomchat create Friday standup`,
		RunE: withClient(connect, func(cmd *cobra.Command, args []string, c *Client) error {
			r, err := c.Rooms.CreateRoom(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			printRoom(cmd.OutOrStdout(), r, c.Rooms.ShareURL(r.ID))
			return nil
		}),
	}
}

func newJoinCmd(connect ConnectFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "join <room-id|share-url>",
		Short: "Resolve a room by ID or share link",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(connect, func(cmd *cobra.Command, args []string, c *Client) error {
			r, err := c.Rooms.JoinRoom(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printRoom(cmd.OutOrStdout(), r, c.Rooms.ShareURL(r.ID))
			return nil
		}),
	}
}

func printRoom(w io.Writer, r *domain.Room, shareURL string) {
	fmt.Fprintf(w, "Room:  %s\n", r.Name)
	fmt.Fprintf(w, "ID:    %s\n", r.ID)
	fmt.Fprintf(w, "Share: %s\n", shareURL)
}
