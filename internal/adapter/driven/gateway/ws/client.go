package ws

import "github.com/Wyydra/yacall/internal/core/domain"

// Client is one websocket connection registered with the relay.
type Client interface {
	ID() string
	Name() string
	ConversationID() domain.ConversationID
	SendSignal(signal domain.Signal) error
	Close() error
}
