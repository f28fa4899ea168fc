package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/flowchat/internal/model"
	"github.com/capitalize-ai/flowchat/internal/store"
	"github.com/capitalize-ai/flowchat/pkg/logger"
	"github.com/capitalize-ai/flowchat/pkg/metrics"
)

// EventPublisher receives chat change events.
type EventPublisher interface {
	Publish(ctx context.Context, event *model.ChatEvent) error
}

// ChatService handles chat and message operations. Every operation is
// scoped to the caller-supplied user email.
type ChatService struct {
	store  store.ChatStore
	events EventPublisher
	logger *logger.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewChatService creates a new chat service. events may be nil.
func NewChatService(chats store.ChatStore, events EventPublisher, log *logger.Logger) *ChatService {
	return &ChatService{
		store:  chats,
		events: events,
		logger: log,
		tracer: otel.Tracer("github.com/capitalize-ai/flowchat/internal/service"),
		now:    time.Now,
	}
}

// ListChats returns the user's chats newest first and their messages keyed
// by chat id.
func (s *ChatService) ListChats(ctx context.Context, userEmail string) (*model.ChatListResponse, error) {
	ctx, span := s.startSpan(ctx, "ChatService.ListChats", userEmail, "")
	defer span.End()

	if userEmail == "" {
		return nil, validation("User email is required")
	}

	chats, err := s.store.ListChats(ctx, model.NormalizeEmail(userEmail))
	if err != nil {
		return nil, s.fail(span, internal("Failed to fetch chats", err))
	}

	resp := &model.ChatListResponse{
		Chats:    make([]model.Chat, 0, len(chats)),
		Messages: make(map[string][]model.Message, len(chats)),
	}
	for i := range chats {
		messages := chats[i].Messages
		if messages == nil {
			messages = []model.Message{}
		}
		resp.Chats = append(resp.Chats, chats[i].Summary())
		resp.Messages[chats[i].ID] = messages
	}

	span.SetAttributes(attribute.Int("chat.count", len(resp.Chats)))
	return resp, nil
}

// CreateChat inserts a chat with no messages. Chat ids are unique across
// all users.
func (s *ChatService) CreateChat(ctx context.Context, req *model.CreateChatRequest) (*model.Chat, error) {
	var chatID string
	if req.ChatData != nil {
		chatID = req.ChatData.ID
	}
	ctx, span := s.startSpan(ctx, "ChatService.CreateChat", req.UserEmail, chatID)
	defer span.End()

	if req.UserEmail == "" || req.ChatData == nil {
		return nil, validation("User email and chat data are required")
	}
	if req.ChatData.ID == "" || req.ChatData.SessionID == "" {
		return nil, validation("Chat id and session id are required")
	}

	now := s.now().UTC()
	chat := newChat(model.NormalizeEmail(req.UserEmail), req.ChatData, now)

	if err := s.store.CreateChat(ctx, chat); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, s.fail(span, conflict("Chat already exists", err))
		}
		return nil, s.fail(span, internal("Failed to create chat", err))
	}

	metrics.ChatsTotal.Inc()
	s.publish(ctx, model.EventChatCreated, chat.UserEmail, chat.ID, "", 0)

	s.logger.Debug("chat created", zap.String("chat_id", chat.ID))
	return chat, nil
}

// AddMessage appends msg to the chat, refreshing its preview and, on the
// first user message, its title.
func (s *ChatService) AddMessage(ctx context.Context, userEmail, chatID string, msg *model.Message) (*model.Chat, error) {
	ctx, span := s.startSpan(ctx, "ChatService.AddMessage", userEmail, chatID)
	defer span.End()

	if userEmail == "" || chatID == "" || msg == nil {
		return nil, validation("User email, chat ID, and message data are required")
	}
	if msg.ID == "" {
		return nil, validation("Message id is required")
	}

	m := normalizeMessage(*msg, s.now().UTC())
	chat, err := s.store.AppendMessage(ctx, model.NormalizeEmail(userEmail), chatID, m)
	if errors.Is(err, store.ErrNotFound) {
		return nil, s.fail(span, notFound("Chat not found"))
	}
	if err != nil {
		return nil, s.fail(span, internal("Failed to add message", err))
	}

	metrics.RecordMessage(m.IsUser, m.IsError)
	s.publish(ctx, model.EventMessageAdded, chat.UserEmail, chat.ID, m.ID, 0)

	return chat, nil
}

// UpdateChat sets the title and last message preview when given.
func (s *ChatService) UpdateChat(ctx context.Context, userEmail, chatID string, req model.UpdateChatRequest) (*model.Chat, error) {
	ctx, span := s.startSpan(ctx, "ChatService.UpdateChat", userEmail, chatID)
	defer span.End()

	if userEmail == "" || chatID == "" {
		return nil, validation("User email and chat ID are required")
	}

	chat, err := s.store.UpdateChat(ctx, model.NormalizeEmail(userEmail), chatID, req)
	if errors.Is(err, store.ErrNotFound) {
		return nil, s.fail(span, notFound("Chat not found"))
	}
	if err != nil {
		return nil, s.fail(span, internal("Failed to update chat", err))
	}

	s.publish(ctx, model.EventChatUpdated, chat.UserEmail, chat.ID, "", 0)

	summary := chat.Summary()
	return &summary, nil
}

// DeleteChat removes the chat and its messages.
func (s *ChatService) DeleteChat(ctx context.Context, userEmail, chatID string) error {
	ctx, span := s.startSpan(ctx, "ChatService.DeleteChat", userEmail, chatID)
	defer span.End()

	if userEmail == "" || chatID == "" {
		return validation("User email and chat ID are required")
	}

	email := model.NormalizeEmail(userEmail)
	err := s.store.DeleteChat(ctx, email, chatID)
	if errors.Is(err, store.ErrNotFound) {
		return s.fail(span, notFound("Chat not found"))
	}
	if err != nil {
		return s.fail(span, internal("Failed to delete chat", err))
	}

	metrics.ChatsDeletedTotal.Inc()
	s.publish(ctx, model.EventChatDeleted, email, chatID, "", 0)

	return nil
}

// BulkSave replaces every chat of the user with the given chats and
// messages in one transaction. It returns the number of chats written.
func (s *ChatService) BulkSave(ctx context.Context, req *model.BulkSaveRequest) (int, error) {
	ctx, span := s.startSpan(ctx, "ChatService.BulkSave", req.UserEmail, "")
	defer span.End()

	if req.UserEmail == "" || req.Chats == nil || req.Messages == nil {
		return 0, validation("User email, chats, and messages are required")
	}

	email := model.NormalizeEmail(req.UserEmail)
	now := s.now().UTC()

	chats := make([]model.Chat, 0, len(req.Chats))
	for i := range req.Chats {
		chat := newChat(email, &req.Chats[i], now)
		for _, msg := range req.Messages[chat.ID] {
			chat.Messages = append(chat.Messages, normalizeMessage(msg, now))
		}
		if chat.Messages == nil {
			chat.Messages = []model.Message{}
		}
		chats = append(chats, *chat)
	}

	count, err := s.store.ReplaceChats(ctx, email, chats)
	if err != nil {
		metrics.RecordBulkSave("error", len(chats))
		return 0, s.fail(span, internal("Failed to save chats and messages", err))
	}

	metrics.RecordBulkSave("success", count)
	s.publish(ctx, model.EventChatsSynced, email, "", "", count)

	span.SetAttributes(attribute.Int("chat.count", count))
	return count, nil
}

// GetChatMessages returns every message of one chat in append order.
func (s *ChatService) GetChatMessages(ctx context.Context, userEmail, chatID string) ([]model.Message, error) {
	ctx, span := s.startSpan(ctx, "ChatService.GetChatMessages", userEmail, chatID)
	defer span.End()

	if userEmail == "" || chatID == "" {
		return nil, validation("User email and chat ID are required")
	}

	chat, err := s.store.GetChat(ctx, model.NormalizeEmail(userEmail), chatID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, s.fail(span, notFound("Chat not found"))
	}
	if err != nil {
		return nil, s.fail(span, internal("Failed to fetch messages", err))
	}

	if chat.Messages == nil {
		return []model.Message{}, nil
	}
	return chat.Messages, nil
}

func (s *ChatService) startSpan(ctx context.Context, name, userEmail, chatID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("user.email", model.NormalizeEmail(userEmail))}
	if chatID != "" {
		attrs = append(attrs, attribute.String("chat.id", chatID))
	}
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (s *ChatService) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, PublicMessage(err, "error"))
	return err
}

func (s *ChatService) publish(ctx context.Context, eventType model.EventType, userEmail, chatID, messageID string, count int) {
	if s.events == nil {
		return
	}

	event := &model.ChatEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserEmail: userEmail,
		ChatID:    chatID,
		MessageID: messageID,
		Count:     count,
		CreatedAt: s.now().UTC(),
	}

	if err := s.events.Publish(ctx, event); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(string(eventType), "error").Inc()
		s.logger.Warn("failed to publish chat event",
			zap.String("event_type", string(eventType)),
			zap.String("chat_id", chatID),
			zap.Error(err),
		)
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(string(eventType), "success").Inc()
}

func newChat(userEmail string, in *model.ChatInput, now time.Time) *model.Chat {
	title := in.Title
	if title == "" {
		title = model.DefaultTitle
	}
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &model.Chat{
		ID:          in.ID,
		SessionID:   in.SessionID,
		Title:       title,
		UserEmail:   userEmail,
		CreatedAt:   createdAt.UTC(),
		UpdatedAt:   now,
		LastMessage: in.LastMessage,
	}
}

func normalizeMessage(msg model.Message, now time.Time) model.Message {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	msg.Timestamp = msg.Timestamp.UTC()
	if msg.SourceDocuments == nil {
		msg.SourceDocuments = []model.SourceDocument{}
	}
	return msg
}
