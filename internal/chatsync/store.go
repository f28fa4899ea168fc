// Package chatsync keeps a user's chats in memory on the client and
// synchronises them with the backend, falling back to an on-device cache
// when the backend cannot be reached.
package chatsync

import (
	"context"

	"github.com/capitalize-ai/flowchat/internal/model"
)

// Snapshot is the full chat state of one user. Chats are newest first and
// Messages is keyed by chat id.
type Snapshot struct {
	Chats    []model.Chat               `json:"chats"`
	Messages map[string][]model.Message `json:"messages"`
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Chats:    []model.Chat{},
		Messages: map[string][]model.Message{},
	}
}

// Clone copies the chat list and message slices. Empty slices stay non-nil
// so they encode as [] rather than null.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Chats:    make([]model.Chat, len(s.Chats)),
		Messages: make(map[string][]model.Message, len(s.Messages)),
	}
	copy(out.Chats, s.Chats)
	for id, msgs := range s.Messages {
		out.Messages[id] = append(make([]model.Message, 0, len(msgs)), msgs...)
	}
	return out
}

func (s *Snapshot) normalize() *Snapshot {
	if s.Chats == nil {
		s.Chats = []model.Chat{}
	}
	if s.Messages == nil {
		s.Messages = map[string][]model.Message{}
	}
	return s
}

// Store loads and saves whole snapshots.
type Store interface {
	Load(ctx context.Context, userEmail string) (*Snapshot, error)
	Save(ctx context.Context, userEmail string, snap *Snapshot) error
}

// ChangeKind names an incremental change.
type ChangeKind string

const (
	ChangeCreateChat ChangeKind = "create_chat"
	ChangeAddMessage ChangeKind = "add_message"
	ChangeDeleteChat ChangeKind = "delete_chat"
)

// Change is a single edit made by a Session.
type Change struct {
	Kind    ChangeKind
	Chat    *model.Chat
	ChatID  string
	Message *model.Message
}
