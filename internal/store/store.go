// Package store persists users, chats and their messages.
package store

import (
	"context"
	"errors"

	"github.com/capitalize-ai/flowchat/internal/model"
)

var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a uniqueness constraint is violated.
	ErrDuplicate = errors.New("duplicate key")
)

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// ChatStore persists chats. Every lookup is scoped by user email; chat ids
// are unique across all users.
type ChatStore interface {
	// ListChats returns the user's chats newest first, messages included.
	ListChats(ctx context.Context, userEmail string) ([]model.Chat, error)
	// GetChat returns one chat with its messages.
	GetChat(ctx context.Context, userEmail, chatID string) (*model.Chat, error)
	// CreateChat inserts a chat with no messages.
	CreateChat(ctx context.Context, chat *model.Chat) error
	// AppendMessage adds msg to the end of the chat and updates the derived
	// title and last message. The returned chat has no messages.
	AppendMessage(ctx context.Context, userEmail, chatID string, msg model.Message) (*model.Chat, error)
	// UpdateChat applies the non-nil fields of update.
	UpdateChat(ctx context.Context, userEmail, chatID string, update model.UpdateChatRequest) (*model.Chat, error)
	// DeleteChat removes the chat and its messages.
	DeleteChat(ctx context.Context, userEmail, chatID string) error
	// ReplaceChats deletes every chat of the user and inserts chats in one
	// transaction. On error the previous chats are left untouched.
	ReplaceChats(ctx context.Context, userEmail string, chats []model.Chat) (int, error)
}

// Store is a complete persistence backend.
type Store interface {
	UserStore
	ChatStore
	Ping(ctx context.Context) error
	Close() error
}
