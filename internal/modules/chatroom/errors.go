package chatroom

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/roomchat/internal/domain"
)

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps the error taxonomy to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), isValidatorError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrWriteRejected):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBackendUnavailable), errors.Is(err, domain.ErrChannelDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func codeFor(err error) string {
	if isValidatorError(err) {
		return "validation_error"
	}
	return domain.Code(err)
}

// userMessage is what a participant sees. Backend details stay in the logs.
func userMessage(err error) string {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return verr.Field + " " + verr.Reason
	case isValidatorError(err):
		return "the request is invalid: " + err.Error()
	case errors.Is(err, domain.ErrRoomNotFound):
		return "That room does not exist. Check the room ID or link."
	case errors.Is(err, domain.ErrWriteRejected):
		return "Your message could not be saved. Please try again."
	case errors.Is(err, domain.ErrChannelDown):
		return "Live updates are unavailable right now."
	case errors.Is(err, domain.ErrBackendUnavailable):
		return "The chat service is unreachable. Please try again shortly."
	default:
		return "Something went wrong."
	}
}

func isValidatorError(err error) bool {
	var verrs validator.ValidationErrors
	return errors.As(err, &verrs)
}

// apiError writes err as a JSON error response.
func apiError(c echo.Context, err error) error {
	return c.JSON(statusFor(err), ErrorResponse{Code: codeFor(err), Message: userMessage(err)})
}
