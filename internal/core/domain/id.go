package domain

import (
	"github.com/google/uuid"
)

// UserID identifies a participant of the chat infrastructure.
type UserID string

// ConversationID identifies the conversation (or project) channel a call
// is signaled over.
type ConversationID string

// SessionID identifies one call attempt on this client.
type SessionID string

func NewUserID() UserID {
	return UserID(uuid.New().String())
}

func NewConversationID() ConversationID {
	return ConversationID(uuid.New().String())
}

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func (id UserID) String() string {
	return string(id)
}

func (id ConversationID) String() string {
	return string(id)
}

func (id SessionID) String() string {
	return string(id)
}
