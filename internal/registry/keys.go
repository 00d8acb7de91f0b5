package registry

import (
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/livefeed"
	"github.com/nfrund/roomchat/internal/messagelog"
	"github.com/nfrund/roomchat/internal/pubsub"
	"github.com/nfrund/roomchat/internal/rendering"
	"github.com/nfrund/roomchat/internal/room"
)

// Service keys. Core services are set by the server before modules register;
// module services are set in the module's Register phase.
var (
	BackendKey  = Key[domain.Backend]("core.backend")
	BusKey      = Key[pubsub.Bus]("core.bus")
	RendererKey = Key[rendering.Renderer]("core.renderer")

	RoomManagerKey = Key[*room.Manager]("chatroom.rooms")
	MessageLogKey  = Key[*messagelog.Log]("chatroom.messages")
	LiveChannelKey = Key[*livefeed.Channel]("chatroom.live")
)
