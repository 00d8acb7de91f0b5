package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/session"
	"github.com/nfrund/roomchat/internal/transcript"
	"github.com/spf13/cobra"
)

const chatHelp = `Commands:
  /create [name]      create a room and enter it
  /join <id|link>     enter an existing room
  /nick <name>        change your nickname
  /share              print the share link of the current room
  /refresh            reload history, for when live updates stopped
  /resubscribe        reopen the live channel
  /retry              check the connection again
  /leave              go back to the start
  /quit               exit
Anything else is sent to the current room.`

func newChatCmd(connect ConnectFunc) *cobra.Command {
	var nick string
	cmd := &cobra.Command{
		Use:   "chat [room]",
		Short: "Chat interactively in a room",
		Long: `Start an interactive session. With a room ID or share link the session
enters that room at once; otherwise use /create or /join.

` + chatHelp,
		Args: cobra.MaximumNArgs(1),
		RunE: withClient(connect, func(cmd *cobra.Command, args []string, c *Client) error {
			ctx := cmd.Context()
			sess := session.New(c.Rooms, c.Log, c.Live,
				session.WithNickname(nick),
				session.WithPinger(c.Backend),
			)
			defer sess.Close()

			t := &terminal{sess: sess, out: cmd.OutOrStdout()}
			t.printf("You are %s. Type /help for commands.\n", sess.Nickname())
			if err := sess.CheckConnection(ctx); err != nil {
				t.printf("! %s Type /retry to check again.\n", describe(err))
			}
			if len(args) == 1 {
				t.enter(ctx, func() (*domain.Room, error) { return sess.Join(ctx, args[0]) })
			}
			return t.run(ctx, cmd.InOrStdin())
		}),
	}
	cmd.Flags().StringVar(&nick, "nick", "", "nickname to chat as (random when empty)")
	return cmd
}

// terminal renders a session as lines of text. All output happens on the
// goroutine running run, so the position in the view never races a room switch.
type terminal struct {
	sess *session.Session
	out  io.Writer

	shown    int
	liveDown bool
}

func (t *terminal) printf(format string, args ...any) {
	fmt.Fprintf(t.out, format, args...)
}

func (t *terminal) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			t.flush()
			return nil
		case <-t.sess.Changes():
			t.flush()
		case line, ok := <-lines:
			if !ok {
				t.flush()
				return <-scanErr
			}
			if quit := t.handle(ctx, line); quit {
				t.flush()
				return nil
			}
		}
	}
}

// flush prints messages not shown yet and reports a dropped live channel once.
func (t *terminal) flush() {
	msgs, n := t.sess.MessagesSince(t.shown)
	for _, m := range msgs {
		t.printf("%s\n", transcript.Line(m))
	}
	t.shown = n

	if t.sess.Phase() != session.PhaseChat {
		return
	}
	open, err := t.sess.LiveState()
	switch {
	case !open && err != nil && !t.liveDown:
		t.liveDown = true
		t.printf("! %s Use /refresh to catch up or /resubscribe to retry.\n", describe(err))
	case open:
		t.liveDown = false
	}
}

func (t *terminal) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		if _, err := t.sess.Send(ctx, line); err != nil {
			if errors.Is(err, session.ErrNotInRoom) {
				t.printf("! Join or create a room first.\n")
			} else {
				t.printf("! %s\n", describe(err))
			}
		}
		t.flush()
		return false
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "quit", "exit":
		return true
	case "help":
		t.printf("%s\n", chatHelp)
	case "nick":
		t.printf("You are now %s.\n", t.sess.SetNickname(arg))
	case "create":
		t.enter(ctx, func() (*domain.Room, error) { return t.sess.Create(ctx, arg) })
	case "join":
		if arg == "" {
			t.printf("! Usage: /join <room-id|share-link>\n")
			return false
		}
		t.enter(ctx, func() (*domain.Room, error) { return t.sess.Join(ctx, arg) })
	case "share":
		if snap := t.sess.Snapshot(); snap.Room != nil {
			t.printf("%s\n", snap.ShareURL)
		} else {
			t.printf("! Not in a room.\n")
		}
	case "refresh":
		t.report(t.sess.Refresh(ctx))
	case "resubscribe":
		if err := t.sess.Resubscribe(ctx); err != nil {
			t.report(err)
		} else {
			t.printf("Live updates resumed.\n")
		}
	case "retry":
		if err := t.sess.CheckConnection(ctx); err != nil {
			t.report(err)
		} else {
			t.printf("Connected.\n")
		}
	case "leave":
		t.report(t.sess.Leave())
		t.shown = 0
		t.printf("Left the room.\n")
	default:
		t.printf("! Unknown command /%s. Type /help.\n", name)
	}
	t.flush()
	return false
}

// enter runs a Create or Join and prints the room header followed by its
// messages. A failed join leaves the previous state untouched.
func (t *terminal) enter(ctx context.Context, fn func() (*domain.Room, error)) {
	room, err := fn()
	if room == nil {
		t.report(err)
		return
	}
	t.shown = 0
	t.liveDown = false
	t.printf("== %s (%s)\n", room.Name, room.ID)
	t.printf("   share: %s\n", t.sess.Snapshot().ShareURL)
	if err != nil {
		t.report(err)
	}
	t.flush()
}

func (t *terminal) report(err error) {
	if err != nil {
		t.printf("! %s\n", describe(err))
	}
}

// describe turns an error into a short line for the terminal.
func describe(err error) string {
	switch {
	case errors.Is(err, session.ErrNotInRoom):
		return "Not in a room."
	case errors.Is(err, domain.ErrRoomNotFound):
		return "That room does not exist."
	case errors.Is(err, domain.ErrValidation):
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			return fmt.Sprintf("Invalid %s: %s.", verr.Field, verr.Reason)
		}
		return "Invalid input."
	case errors.Is(err, domain.ErrWriteRejected):
		return "The message could not be saved."
	case errors.Is(err, domain.ErrChannelDown):
		return "Live updates stopped."
	case errors.Is(err, domain.ErrBackendUnavailable):
		return "The chat service is unreachable."
	default:
		return err.Error()
	}
}
