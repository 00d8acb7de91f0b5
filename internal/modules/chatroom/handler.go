package chatroom

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/livefeed"
	"github.com/nfrund/roomchat/internal/messagelog"
	"github.com/nfrund/roomchat/internal/middleware"
	"github.com/nfrund/roomchat/internal/rendering"
	"github.com/nfrund/roomchat/internal/room"
	"github.com/nfrund/roomchat/internal/view"
	"github.com/nfrund/roomchat/web/src/templates/layouts"
	g "maragu.dev/gomponents"
)

// Handler serves the chatroom routes.
type Handler struct {
	rooms    *room.Manager
	messages *messagelog.Log
	live     *livefeed.Channel
	renderer rendering.Renderer
	origins  []string
}

func (h *Handler) page(c echo.Context, status int, title string, content g.Node) error {
	return h.renderer.RenderPage(c, status, layouts.Base(title, view.GetFlashData(c), view.AdaptGomponentToTempl(content)))
}

func isHTMX(c echo.Context) bool {
	return c.Request().Header.Get("HX-Request") == "true"
}

func roomPath(id string) string {
	return "/rooms/" + url.PathEscape(id)
}

// Home renders the start page. A ?room= parameter pre-fills the join form,
// which is how share links land.
func (h *Handler) Home(c echo.Context) error {
	return h.page(c, http.StatusOK, "", startView(startPage{
		Nickname: view.Nickname(c),
		RoomID:   c.QueryParam(room.QueryParam),
	}))
}

// CreateRoom creates a room from the start page form and enters it.
func (h *Handler) CreateRoom(c echo.Context) error {
	var req CreateRoomRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body").SetInternal(err)
	}
	if err := c.Validate(&req); err != nil {
		return h.startWithError(c, "", err)
	}
	if req.Nickname != "" {
		view.SetNickname(c, req.Nickname)
	}

	rm, err := h.rooms.CreateRoom(c.Request().Context(), req.Name)
	if err != nil {
		return h.startWithError(c, "", err)
	}
	return c.Redirect(http.StatusSeeOther, roomPath(rm.ID))
}

// JoinRoom resolves a room ID or share link from the start page form.
// Failures keep the participant on the start page.
func (h *Handler) JoinRoom(c echo.Context) error {
	var req JoinRoomRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body").SetInternal(err)
	}
	if err := c.Validate(&req); err != nil {
		return h.startWithError(c, req.RoomID, err)
	}
	if req.Nickname != "" {
		view.SetNickname(c, req.Nickname)
	}

	rm, err := h.rooms.JoinRoom(c.Request().Context(), req.RoomID)
	if err != nil {
		return h.startWithError(c, req.RoomID, err)
	}
	return c.Redirect(http.StatusSeeOther, roomPath(rm.ID))
}

func (h *Handler) startWithError(c echo.Context, roomID string, err error) error {
	h.logFailure(c, "Start page action failed", err)
	return h.page(c, statusFor(err), "", startView(startPage{
		Nickname: view.Nickname(c),
		RoomID:   roomID,
		Error:    userMessage(err),
	}))
}

// SetNickname stores the nickname and goes back to where the form was.
func (h *Handler) SetNickname(c echo.Context) error {
	var req NicknameRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body").SetInternal(err)
	}
	if err := c.Validate(&req); err != nil {
		return h.startWithError(c, "", err)
	}
	n := view.SetNickname(c, req.Nickname)
	view.SetFlashSuccess(c, "You are now "+n+".")
	return c.Redirect(http.StatusSeeOther, "/")
}

// RoomPage renders the chat screen. History is loaded here for the first
// paint; the WebSocket replaces it with a fresh snapshot once connected.
func (h *Handler) RoomPage(c echo.Context) error {
	ctx := c.Request().Context()
	rm, err := h.rooms.JoinRoom(ctx, c.Param("id"))
	if err != nil {
		return h.startWithError(c, c.Param("id"), err)
	}

	p := roomPage{
		Room:     rm,
		ShareURL: h.rooms.ShareURL(rm.ID),
		Nickname: view.Nickname(c),
	}
	history, err := h.messages.FetchHistory(ctx, rm.ID)
	if err != nil {
		h.logFailure(c, "History fetch failed", err)
		p.HistoryErr = "Earlier messages could not be loaded."
		history = []domain.Message{}
	}
	p.Messages = history
	return h.page(c, http.StatusOK, rm.Name, roomView(p))
}

// SendMessage appends a message as the session nickname. htmx requests get
// the stored message back as a fragment.
func (h *Handler) SendMessage(c echo.Context) error {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body").SetInternal(err)
	}
	roomID := c.Param("id")

	msg, err := h.messages.Append(c.Request().Context(), roomID, view.Nickname(c), req.Text)
	if err != nil {
		h.logFailure(c, "Send failed", err)
		if isHTMX(c) {
			c.Response().Header().Set("HX-Retarget", "#send-error")
			c.Response().Header().Set("HX-Reswap", "innerHTML")
			return h.renderer.RenderPage(c, statusFor(err), sendErrorFragment(userMessage(err)))
		}
		view.SetFlashError(c, userMessage(err))
		return c.Redirect(http.StatusSeeOther, roomPath(roomID))
	}

	if isHTMX(c) {
		return h.renderer.RenderPage(c, http.StatusOK, sentFragment(*msg))
	}
	return c.Redirect(http.StatusSeeOther, roomPath(roomID))
}

// logFailure logs at warn for expected outcomes and error for the rest.
// WriteRejected details only ever reach the log.
func (h *Handler) logFailure(c echo.Context, msg string, err error) {
	logger := middleware.FromContext(c.Request().Context())
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrRoomNotFound), isValidatorError(err):
		logger.Debug(msg, "error", err, "code", codeFor(err))
	case errors.Is(err, domain.ErrBackendUnavailable), errors.Is(err, domain.ErrChannelDown):
		logger.Warn(msg, "error", err, "code", codeFor(err))
	default:
		logger.Error(msg, "error", err, "code", codeFor(err))
	}
}
