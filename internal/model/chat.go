// Package model defines data structures for chat persistence.
package model

import (
	"time"
	"unicode/utf8"
)

const (
	// DefaultTitle is the title of a chat that has not seen a user message yet.
	DefaultTitle = "New Chat"

	// TitleLength is the number of characters kept when a title is derived.
	TitleLength = 30

	// PreviewLength is the number of characters kept for the last message preview.
	PreviewLength = 50

	ellipsis = "..."
)

// SourceDocument is a citation attached to an assistant message by the
// prediction service. It is stored as received.
type SourceDocument struct {
	PageContent string         `json:"pageContent" bson:"pageContent"`
	Metadata    map[string]any `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// Message is a single entry in a chat. Messages are append-only.
type Message struct {
	ID              string           `json:"id" bson:"id"`
	Text            string           `json:"text" bson:"text"`
	IsUser          bool             `json:"isUser" bson:"isUser"`
	Timestamp       time.Time        `json:"timestamp" bson:"timestamp"`
	IsError         bool             `json:"isError" bson:"isError"`
	SourceDocuments []SourceDocument `json:"sourceDocuments" bson:"sourceDocuments"`
}

// Chat is a conversation owned by one user email.
type Chat struct {
	ID          string    `json:"id" bson:"id"`
	SessionID   string    `json:"sessionId" bson:"sessionId"`
	Title       string    `json:"title" bson:"title"`
	UserEmail   string    `json:"-" bson:"userEmail"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time `json:"-" bson:"updatedAt"`
	LastMessage *string   `json:"lastMessage" bson:"lastMessage"`
	Messages    []Message `json:"-" bson:"messages"`
}

// Truncate keeps the first n characters of s and appends an ellipsis when
// anything was cut.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + ellipsis
}

// LastMessagePreview derives the chat list preview for a message text.
func LastMessagePreview(text string) string {
	return Truncate(text, PreviewLength)
}

// DerivedTitle derives a chat title from the first user message.
func DerivedTitle(text string) string {
	return Truncate(text, TitleLength)
}

// HasUserMessage reports whether any message in the chat was written by the user.
func (c *Chat) HasUserMessage() bool {
	for _, m := range c.Messages {
		if m.IsUser {
			return true
		}
	}
	return false
}

// Append adds msg to the chat and recomputes the derived fields: the last
// message preview always, and the title only when msg is the first user
// message and the title was never changed from DefaultTitle.
func (c *Chat) Append(msg Message) {
	hadUser := c.HasUserMessage()
	if msg.SourceDocuments == nil {
		msg.SourceDocuments = []SourceDocument{}
	}
	c.Messages = append(c.Messages, msg)
	c.ApplyMessage(msg, hadUser)
}

// ApplyMessage updates the derived fields for a newly appended msg without
// touching Messages. Stores that append outside of memory call it with
// whether the chat already held a user message.
func (c *Chat) ApplyMessage(msg Message, hadUserMessage bool) {
	preview := LastMessagePreview(msg.Text)
	c.LastMessage = &preview
	if msg.IsUser && !hadUserMessage && c.Title == DefaultTitle {
		c.Title = DerivedTitle(msg.Text)
	}
}

// Summary returns a copy of the chat without its messages.
func (c *Chat) Summary() Chat {
	out := *c
	out.Messages = nil
	return out
}
