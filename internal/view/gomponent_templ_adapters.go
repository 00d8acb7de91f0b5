package view

import (
	"context"
	"io"

	"github.com/a-h/templ"
	g "maragu.dev/gomponents"
)

// AdaptGomponentToTempl lets a gomponents page body sit inside the templ
// layout. The layout's context is not passed on since gomponents has none.
func AdaptGomponentToTempl(node g.Node) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		return node.Render(w)
	})
}

// AdaptTemplToGomponent embeds a templ component in a gomponents tree,
// rendering it with a background context.
func AdaptTemplToGomponent(component templ.Component) g.Node {
	return g.NodeFunc(func(w io.Writer) error {
		return component.Render(context.Background(), w)
	})
}
