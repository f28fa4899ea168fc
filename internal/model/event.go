package model

import (
	"time"
)

// EventType is the kind of change a ChatEvent describes.
type EventType string

const (
	EventChatCreated  EventType = "chat.created"
	EventChatUpdated  EventType = "chat.updated"
	EventChatDeleted  EventType = "chat.deleted"
	EventMessageAdded EventType = "message.added"
	EventChatsSynced  EventType = "chats.synced"
)

// ChatEvent records a change to a user's chats for downstream consumers.
type ChatEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	UserEmail string    `json:"userEmail"`
	ChatID    string    `json:"chatId,omitempty"`
	MessageID string    `json:"messageId,omitempty"`
	Count     int       `json:"count,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
