package chatroom

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/middleware"
	"github.com/nfrund/roomchat/internal/session"
	"github.com/nfrund/roomchat/internal/view"
	g "maragu.dev/gomponents"
)

// streamWriter encodes stream events for one kind of client.
type streamWriter interface {
	history(ctx context.Context, msgs []domain.Message) error
	messages(ctx context.Context, msgs []domain.Message) error
	channelDown(ctx context.Context, err error) error
	failed(ctx context.Context, err error) error
}

// APIStream handles GET /api/v1/rooms/:id/stream: a WebSocket of JSON
// events, a history snapshot first and then every new message once.
func (h *Handler) APIStream(c echo.Context) error {
	nickname := view.Nickname(c)
	conn, err := h.accept(c)
	if err != nil {
		return nil // Accept already wrote the response
	}
	return h.serveStream(c, conn, nickname, &jsonStream{conn: conn})
}

// LiveFragments handles GET /rooms/:id/ws for the htmx ws extension. Frames
// are HTML fragments swapped out of band.
func (h *Handler) LiveFragments(c echo.Context) error {
	nickname := view.Nickname(c)
	conn, err := h.accept(c)
	if err != nil {
		return nil
	}
	return h.serveStream(c, conn, nickname, &htmlStream{conn: conn, h: h, nickname: nickname})
}

func (h *Handler) accept(c echo.Context) (*websocket.Conn, error) {
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		middleware.FromContext(c.Request().Context()).Warn("WebSocket upgrade failed", "error", err)
		return nil, err
	}
	return conn, nil
}

// serveStream joins the room through a session, so history and the live
// subscription load side by side and overlap is removed by message ID.
func (h *Handler) serveStream(c echo.Context, conn *websocket.Conn, nickname string, out streamWriter) error {
	logger := middleware.FromContext(c.Request().Context())
	ctx := conn.CloseRead(c.Request().Context())

	sess := session.New(h.rooms, h.messages, h.live, session.WithNickname(nickname), session.WithLogger(logger))
	defer sess.Close()

	if _, err := sess.Join(ctx, c.Param("id")); err != nil {
		if open, _ := sess.LiveState(); !open {
			logger.Debug("Stream could not start", "error", err, "code", codeFor(err))
			_ = out.failed(ctx, err)
			return conn.Close(closeStatus(err), codeFor(err))
		}
		// History failed but live works: stream what arrives.
		logger.Warn("Stream started without history", "error", err)
	}

	msgs, n := sess.MessagesSince(0)
	if err := out.history(ctx, msgs); err != nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return nil
		case <-sess.Changes():
		}

		msgs, n = sess.MessagesSince(n)
		if len(msgs) > 0 {
			if err := out.messages(ctx, msgs); err != nil {
				return nil
			}
		}
		open, liveErr := sess.LiveState()
		switch {
		case open:
		case liveErr != nil:
			logger.Warn("Live channel down, closing stream", "event", "stream_channel_down", "error", liveErr)
			_ = out.channelDown(ctx, liveErr)
			return conn.Close(websocket.StatusTryAgainLater, "channel_down")
		default:
			// Subscription closed without error: the server is shutting down.
			return conn.Close(websocket.StatusGoingAway, "")
		}
	}
}

func closeStatus(err error) websocket.StatusCode {
	switch statusFor(err) {
	case http.StatusNotFound, http.StatusUnprocessableEntity:
		return websocket.StatusPolicyViolation
	case http.StatusServiceUnavailable:
		return websocket.StatusTryAgainLater
	default:
		return websocket.StatusInternalError
	}
}

type jsonStream struct {
	conn *websocket.Conn
}

func (s *jsonStream) history(ctx context.Context, msgs []domain.Message) error {
	return wsjson.Write(ctx, s.conn, StreamEvent{Type: EventHistory, Messages: msgs})
}

func (s *jsonStream) messages(ctx context.Context, msgs []domain.Message) error {
	for i := range msgs {
		if err := wsjson.Write(ctx, s.conn, StreamEvent{Type: EventMessage, Message: &msgs[i]}); err != nil {
			return err
		}
	}
	return nil
}

func (s *jsonStream) channelDown(ctx context.Context, err error) error {
	return wsjson.Write(ctx, s.conn, StreamEvent{Type: EventChannelDown, Error: &ErrorResponse{Code: codeFor(err), Message: userMessage(err)}})
}

func (s *jsonStream) failed(ctx context.Context, err error) error {
	return wsjson.Write(ctx, s.conn, StreamEvent{Type: EventError, Error: &ErrorResponse{Code: codeFor(err), Message: userMessage(err)}})
}

type htmlStream struct {
	conn     *websocket.Conn
	h        *Handler
	nickname string
}

func (s *htmlStream) write(ctx context.Context, node g.Node) error {
	body, err := s.h.renderer.RenderComponent(ctx, node)
	if err != nil {
		return err
	}
	return s.conn.Write(ctx, websocket.MessageText, body)
}

func (s *htmlStream) history(ctx context.Context, msgs []domain.Message) error {
	return s.write(ctx, historyFragment(msgs, s.nickname))
}

func (s *htmlStream) messages(ctx context.Context, msgs []domain.Message) error {
	return s.write(ctx, appendFragment(msgs, s.nickname))
}

func (s *htmlStream) channelDown(ctx context.Context, err error) error {
	return s.write(ctx, liveDownFragment("Live updates stopped."))
}

func (s *htmlStream) failed(ctx context.Context, err error) error {
	if errors.Is(err, domain.ErrChannelDown) {
		return s.channelDown(ctx, err)
	}
	return s.write(ctx, liveDownFragment(userMessage(err)))
}
