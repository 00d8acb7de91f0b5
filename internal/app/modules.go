package app

import (
	"github.com/nfrund/roomchat/internal/module"
	"github.com/nfrund/roomchat/internal/modules/chatroom"
)

// NewModules returns every active module, in registration order.
func NewModules(deps Dependencies) []module.Module {
	return []module.Module{
		chatroom.New(chatroomDeps(deps)),
	}
}
