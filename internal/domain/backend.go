package domain

import "context"

// Backend is an explicitly constructed handle to the store that holds rooms
// and messages and pushes inserts to subscribers. The composing application
// owns its lifetime: Connect before use, Ping for health, Close on shutdown.
type Backend interface {
	Connect(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error

	Rooms() RoomRepository
	Messages() MessageRepository
	Feed() MessageFeed
}
