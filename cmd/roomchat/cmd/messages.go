package cmd

import (
	"fmt"
	"strings"

	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/session"
	"github.com/nfrund/roomchat/internal/transcript"
	"github.com/spf13/cobra"
)

func newHistoryCmd(connect ConnectFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "history <room>",
		Short: "Print a room's messages, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: withClient(connect, func(cmd *cobra.Command, args []string, c *Client) error {
			r, err := c.Rooms.JoinRoom(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			msgs, err := c.Log.FetchHistory(cmd.Context(), r.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range msgs {
				fmt.Fprintln(out, transcript.Line(m))
			}
			return nil
		}),
	}
}

func newSendCmd(connect ConnectFunc) *cobra.Command {
	var as string
	cmd := &cobra.Command{
		Use:   "send <room> <text>...",
		Short: "Post one message to a room",
		Long: `Post a message. Words after the room form the text. Without --as the
message is sent under a random nickname.

Examples:
  roomchat send k3x9q2 hello everyone --as Alice`,
		Args: cobra.MinimumNArgs(2),
		RunE: withClient(connect, func(cmd *cobra.Command, args []string, c *Client) error {
			r, err := c.Rooms.JoinRoom(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			msg, err := c.Log.Append(cmd.Context(), r.ID, domain.NormalizeNickname(as), strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), transcript.Line(*msg))
			return nil
		}),
	}
	cmd.Flags().StringVar(&as, "as", "", "nickname to send as")
	return cmd
}

func newTailCmd(connect ConnectFunc) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "tail <room>",
		Short: "Follow a room, printing new messages as they arrive",
		Long: `Print the last messages of a room and then every new one until
interrupted. Stops with an error if the live channel drops.`,
		Args: cobra.ExactArgs(1),
		RunE: withClient(connect, func(cmd *cobra.Command, args []string, c *Client) error {
			ctx := cmd.Context()
			sess := session.New(c.Rooms, c.Log, c.Live)
			defer sess.Close()

			if _, err := sess.Join(ctx, args[0]); err != nil {
				if open, _ := sess.LiveState(); !open {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "history unavailable: %v\n", err)
			}

			out := cmd.OutOrStdout()
			msgs, n := sess.MessagesSince(0)
			if lines >= 0 && len(msgs) > lines {
				msgs = msgs[len(msgs)-lines:]
			}
			for _, m := range msgs {
				fmt.Fprintln(out, transcript.Line(m))
			}

			for {
				select {
				case <-ctx.Done():
					return nil
				case <-sess.Changes():
				}
				msgs, n = sess.MessagesSince(n)
				for _, m := range msgs {
					fmt.Fprintln(out, transcript.Line(m))
				}
				if open, err := sess.LiveState(); !open {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
			}
		}),
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "number of past messages to show (-1 for all)")
	return cmd
}
