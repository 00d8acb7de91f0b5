package view

import (
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/roomchat/internal/domain"
)

const (
	participantSessionName = "participant"
	nicknameKey            = "nickname"
)

// Nickname returns the browser's nickname. On first use a random one is
// picked and saved to the session cookie.
func Nickname(c echo.Context) string {
	sess, err := session.Get(participantSessionName, c)
	if err != nil {
		return domain.RandomNickname()
	}
	if n, ok := sess.Values[nicknameKey].(string); ok && n != "" {
		return n
	}
	n := domain.RandomNickname()
	sess.Values[nicknameKey] = n
	_ = sess.Save(c.Request(), c.Response())
	return n
}

// SetNickname normalises and stores the nickname, returning the stored value.
func SetNickname(c echo.Context, nickname string) string {
	n := domain.NormalizeNickname(nickname)
	sess, err := session.Get(participantSessionName, c)
	if err != nil {
		return n
	}
	sess.Values[nicknameKey] = n
	_ = sess.Save(c.Request(), c.Response())
	return n
}
