package chatroom

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/roomchat/internal/domain"
)

func (h *Handler) roomResponse(rm *domain.Room) RoomResponse {
	return RoomResponse{
		ID:        rm.ID,
		Name:      rm.Name,
		CreatedAt: rm.CreatedAt,
		ShareURL:  h.rooms.ShareURL(rm.ID),
	}
}

// APICreateRoom handles POST /api/v1/rooms.
func (h *Handler) APICreateRoom(c echo.Context) error {
	var req CreateRoomRequest
	if err := c.Bind(&req); err != nil {
		return apiError(c, domain.NewValidationError("body", "is not valid JSON"))
	}
	if err := c.Validate(&req); err != nil {
		return apiError(c, err)
	}

	rm, err := h.rooms.CreateRoom(c.Request().Context(), req.Name)
	if err != nil {
		h.logFailure(c, "Create room failed", err)
		return apiError(c, err)
	}
	return c.JSON(http.StatusCreated, h.roomResponse(rm))
}

// APIGetRoom handles GET /api/v1/rooms/:id.
func (h *Handler) APIGetRoom(c echo.Context) error {
	rm, err := h.rooms.JoinRoom(c.Request().Context(), c.Param("id"))
	if err != nil {
		h.logFailure(c, "Get room failed", err)
		return apiError(c, err)
	}
	return c.JSON(http.StatusOK, h.roomResponse(rm))
}

// APIListMessages handles GET /api/v1/rooms/:id/messages. An unknown room is
// a 404 rather than an empty list.
func (h *Handler) APIListMessages(c echo.Context) error {
	ctx := c.Request().Context()
	rm, err := h.rooms.JoinRoom(ctx, c.Param("id"))
	if err != nil {
		h.logFailure(c, "List messages failed", err)
		return apiError(c, err)
	}
	history, err := h.messages.FetchHistory(ctx, rm.ID)
	if err != nil {
		h.logFailure(c, "List messages failed", err)
		return apiError(c, err)
	}
	return c.JSON(http.StatusOK, history)
}

// APISendMessage handles POST /api/v1/rooms/:id/messages. A blank sender
// gets a random nickname.
func (h *Handler) APISendMessage(c echo.Context) error {
	var req SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return apiError(c, domain.NewValidationError("body", "is not valid JSON"))
	}
	if err := c.Validate(&req); err != nil {
		return apiError(c, err)
	}

	msg, err := h.messages.Append(c.Request().Context(), c.Param("id"), domain.NormalizeNickname(req.Sender), req.Text)
	if err != nil {
		h.logFailure(c, "Send message failed", err)
		return apiError(c, err)
	}
	return c.JSON(http.StatusCreated, msg)
}
