package layouts

import (
	"context"
	"io"

	"github.com/a-h/templ"
	"github.com/nfrund/roomchat/internal/view"
	g "maragu.dev/gomponents"
	c "maragu.dev/gomponents/components"
	h "maragu.dev/gomponents/html"
)

const (
	htmxSrc   = "https://unpkg.com/htmx.org@2.0.4"
	htmxWSSrc = "https://unpkg.com/htmx-ext-ws@2.0.2/ws.js"

	// 422 responses carry an inline error fragment, so they are swapped too.
	htmxConfig = `{"responseHandling":[{"code":"204","swap":false},{"code":"[23]..","swap":true},{"code":"422","swap":true},{"code":"[45]..","swap":false,"error":true}]}`
)

// Base wraps page content in the document shell with flash notices.
func Base(title string, flashes view.FlashData, content templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		page := c.HTML5(c.HTML5Props{
			Title:    CalculateTitle(title),
			Language: "en",
			Head: []g.Node{
				h.Meta(h.Name("viewport"), h.Content("width=device-width, initial-scale=1")),
				h.Meta(h.Name("htmx-config"), h.Content(htmxConfig)),
				h.Link(h.Rel("stylesheet"), h.Href("/static/app.css")),
				h.Script(h.Src(htmxSrc)),
				h.Script(h.Src(htmxWSSrc)),
				h.Script(h.Src("/static/app.js"), h.Defer()),
			},
			Body: []g.Node{
				h.Header(h.Class("site-header"),
					h.A(h.Href("/"), g.Text("RoomChat")),
				),
				Flashes(flashes),
				h.Main(h.Class("container"),
					view.AdaptTemplToGomponent(content),
				),
			},
		})
		return page.Render(w)
	})
}

// Flashes renders queued notices. It renders nothing when there are none.
func Flashes(flashes view.FlashData) g.Node {
	if flashes.Empty() {
		return nil
	}
	return h.Div(h.ID("flashes"),
		g.Map(flashes.Success, func(msg string) g.Node {
			return h.Div(h.Class("flash flash-success"), h.Role("status"), g.Text(msg))
		}),
		g.Map(flashes.Error, func(msg string) g.Node {
			return h.Div(h.Class("flash flash-error"), h.Role("alert"), g.Text(msg))
		}),
	)
}
