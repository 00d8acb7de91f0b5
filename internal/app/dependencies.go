package app

import (
	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/modules/chatroom"
)

// Dependencies holds the settings modules are built from. Shared services
// travel through the registry instead.
type Dependencies struct {
	Config config.Provider
}

// chatroomDeps creates the dependency struct for the chatroom module.
func chatroomDeps(deps Dependencies) chatroom.Dependencies {
	return chatroom.Dependencies{
		BaseURL:          deps.Config.GetAppBaseURL(),
		MessageRateLimit: deps.Config.GetMessageRateLimit(),
	}
}
