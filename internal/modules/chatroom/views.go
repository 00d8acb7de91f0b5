package chatroom

import (
	"net/url"
	"time"

	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/room"
	g "maragu.dev/gomponents"
	hx "maragu.dev/gomponents-htmx"
	h "maragu.dev/gomponents/html"
)

const messageListID = "chat-messages"

type startPage struct {
	Nickname string
	RoomID   string
	Error    string
}

func startView(p startPage) g.Node {
	return h.Div(
		g.If(p.Error != "", h.Div(h.Class("notice notice-error"), h.Role("alert"), g.Text(p.Error))),
		h.Section(h.Class("card"),
			h.H2(g.Text("Your nickname")),
			h.Form(h.Class("inline"), h.Method("post"), h.Action("/nickname"),
				h.Input(h.Type("text"), h.Name("nickname"), h.Value(p.Nickname), h.MaxLength("64")),
				h.Button(h.Type("submit"), g.Text("Save")),
			),
		),
		h.Section(h.Class("card"),
			h.H2(g.Text("Create a room")),
			h.Form(h.Class("inline"), h.Method("post"), h.Action("/rooms"),
				h.Input(h.Type("text"), h.Name("name"), h.Placeholder(domain.DefaultRoomName), h.MaxLength("200")),
				h.Button(h.Type("submit"), g.Text("Create")),
			),
		),
		h.Section(h.Class("card"),
			h.H2(g.Text("Join a room")),
			h.Form(h.Class("inline"), h.Method("post"), h.Action("/join"),
				h.Input(h.Type("text"), h.Name("room_id"), h.Value(p.RoomID), h.Placeholder("Room ID or share link"), h.Required()),
				h.Button(h.Type("submit"), g.Text("Join")),
			),
		),
	)
}

type roomPage struct {
	Room       *domain.Room
	ShareURL   string
	Nickname   string
	Messages   []domain.Message
	HistoryErr string
}

func roomView(p roomPage) g.Node {
	wsURL := "/rooms/" + p.Room.ID + "/ws"
	return h.Div(hx.Ext("ws"), g.Attr("ws-connect", wsURL),
		h.Section(h.Class("card"),
			h.H2(g.Text(p.Room.Name)),
			h.Div(h.Class("share"),
				h.Label(h.For("share-url"), g.Text("Share this link to invite others")),
				h.Input(h.ID("share-url"), h.Type("text"), h.ReadOnly(), h.Value(p.ShareURL)),
			),
			h.P(g.Text("Chatting as "), h.Strong(g.Text(p.Nickname)), g.Text(" · "), h.A(h.Href("/?"+room.QueryParam+"="+url.QueryEscape(p.Room.ID)), g.Text("leave"))),
		),
		h.Section(h.Class("card"),
			h.Div(h.ID("live-status")),
			g.If(p.HistoryErr != "", h.Div(h.Class("notice notice-warn"), g.Text(p.HistoryErr))),
			messageList(p.Messages, p.Nickname),
			h.Div(h.ID("send-error")),
			h.Form(h.Class("inline"), h.Method("post"), h.Action("/rooms/"+p.Room.ID+"/messages"),
				hx.Post("/rooms/"+p.Room.ID+"/messages"),
				hx.Target("#"+messageListID),
				hx.Swap("beforeend"),
				g.Attr("data-reset-on-success"),
				h.Input(h.Type("text"), h.Name("text"), h.Placeholder("Say something"), h.AutoComplete("off"), h.Required()),
				h.Button(h.Type("submit"), g.Text("Send")),
			),
		),
	)
}

func messageList(msgs []domain.Message, nickname string) g.Node {
	return h.Ul(h.ID(messageListID), messageItems(msgs, nickname))
}

func messageItems(msgs []domain.Message, nickname string) g.Node {
	return g.Map(msgs, func(m domain.Message) g.Node { return messageItem(m, nickname) })
}

// messageItem renders one message. The viewer's own messages get the "mine"
// class so they align apart from everyone else's.
func messageItem(m domain.Message, nickname string) g.Node {
	class := "message"
	if m.Sender == nickname {
		class += " mine"
	}
	return h.Li(h.ID("msg-"+m.ID), h.Class(class), g.Attr("data-message-id", m.ID),
		h.Span(h.Class("sender"), g.Text(m.Sender)),
		g.Text(m.Body),
		h.Time(h.DateTime(m.CreatedAt.UTC().Format(time.RFC3339)), g.Text(m.CreatedAt.Local().Format("15:04"))),
	)
}

// sentFragment is the response to an htmx send: the stored message for the
// list plus an out-of-band reset of the error slot.
func sentFragment(m domain.Message) g.Node {
	return g.Group{
		messageItem(m, m.Sender),
		h.Div(h.ID("send-error"), hx.SwapOOB("true")),
	}
}

func sendErrorFragment(msg string) g.Node {
	return h.Div(h.Class("notice notice-error"), h.Role("alert"), g.Text(msg))
}

// Live stream fragments, swapped out of band by the htmx ws extension.

func historyFragment(msgs []domain.Message, nickname string) g.Node {
	return h.Ul(h.ID(messageListID), hx.SwapOOB("innerHTML"), messageItems(msgs, nickname))
}

func appendFragment(msgs []domain.Message, nickname string) g.Node {
	return h.Div(hx.SwapOOB("beforeend:#"+messageListID), messageItems(msgs, nickname))
}

func liveDownFragment(msg string) g.Node {
	return h.Div(h.ID("live-status"), hx.SwapOOB("true"), h.Class("notice notice-warn"),
		g.Text(msg+" "),
		h.A(h.Href(""), g.Text("Reload")),
	)
}
