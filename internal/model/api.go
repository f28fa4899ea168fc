package model

import "time"

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterResponse is returned after a successful registration.
type RegisterResponse struct {
	ID    string `json:"_id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
	Token string `json:"token"`
}

// LoginResponse is returned by login. Bad credentials produce Success=false
// with a message and no token.
type LoginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Email   string `json:"email,omitempty"`
	Role    Role   `json:"role,omitempty"`
	UserID  string `json:"userId,omitempty"`
	Token   string `json:"token,omitempty"`
}

// ChatInput carries the client-supplied fields of a chat.
type ChatInput struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"createdAt"`
	LastMessage *string   `json:"lastMessage"`
}

// CreateChatRequest is the body of POST /api/chats.
type CreateChatRequest struct {
	UserEmail string     `json:"userEmail"`
	ChatData  *ChatInput `json:"chatData"`
}

// UpdateChatRequest is the body of PUT /api/chats/{userEmail}/{chatId}.
// Only non-nil fields are applied.
type UpdateChatRequest struct {
	Title       *string `json:"title,omitempty"`
	LastMessage *string `json:"lastMessage,omitempty"`
}

// AddMessageRequest is the body of POST /api/chats/{userEmail}/{chatId}/messages.
type AddMessageRequest struct {
	MessageData *Message `json:"messageData"`
}

// BulkSaveRequest is the body of POST /api/chats/bulk-save.
type BulkSaveRequest struct {
	UserEmail string               `json:"userEmail"`
	Chats     []ChatInput          `json:"chats"`
	Messages  map[string][]Message `json:"messages"`
}

// ChatListResponse is the body of GET /api/chats/{userEmail}.
type ChatListResponse struct {
	Chats    []Chat               `json:"chats"`
	Messages map[string][]Message `json:"messages"`
}

// ChatResponse wraps a single chat.
type ChatResponse struct {
	Success bool `json:"success"`
	Chat    Chat `json:"chat"`
}

// AddMessageResponse is returned after a message is appended.
type AddMessageResponse struct {
	Success     bool    `json:"success"`
	Message     string  `json:"message"`
	LastMessage *string `json:"lastMessage"`
}

// MessagesResponse is the body of GET /api/chats/{userEmail}/{chatId}/messages.
type MessagesResponse struct {
	Success  bool      `json:"success"`
	Messages []Message `json:"messages"`
}

// BulkSaveResponse is returned after a bulk save.
type BulkSaveResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// SuccessResponse is a bare acknowledgement.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
