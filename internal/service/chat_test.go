package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/flowchat/internal/model"
	"github.com/capitalize-ai/flowchat/internal/store"
	"github.com/capitalize-ai/flowchat/pkg/logger"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.ChatEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event *model.ChatEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []model.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]model.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestChatService(t *testing.T) (*ChatService, *recordingPublisher) {
	t.Helper()
	events := &recordingPublisher{}
	return NewChatService(newTestStore(t), events, logger.NewNop()), events
}

func createChat(t *testing.T, svc *ChatService, email, id string) *model.Chat {
	t.Helper()
	chat, err := svc.CreateChat(context.Background(), &model.CreateChatRequest{
		UserEmail: email,
		ChatData:  &model.ChatInput{ID: id, SessionID: "session_" + id},
	})
	require.NoError(t, err)
	return chat
}

func TestCreateChatThenList(t *testing.T) {
	svc, events := newTestChatService(t)
	ctx := context.Background()

	chat := createChat(t, svc, "x@x.com", "c1")
	assert.Equal(t, model.DefaultTitle, chat.Title)
	assert.Nil(t, chat.LastMessage)
	assert.False(t, chat.CreatedAt.IsZero())

	list, err := svc.ListChats(ctx, "x@x.com")
	require.NoError(t, err)
	require.Len(t, list.Chats, 1)
	assert.Equal(t, "c1", list.Chats[0].ID)
	assert.Equal(t, "session_c1", list.Chats[0].SessionID)
	assert.Empty(t, list.Messages["c1"])
	assert.NotNil(t, list.Messages["c1"])

	assert.Equal(t, []model.EventType{model.EventChatCreated}, events.types())
}

func TestCreateChatValidation(t *testing.T) {
	svc, _ := newTestChatService(t)
	ctx := context.Background()

	_, err := svc.CreateChat(ctx, &model.CreateChatRequest{ChatData: &model.ChatInput{ID: "c1", SessionID: "s"}})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateChat(ctx, &model.CreateChatRequest{UserEmail: "x@x.com"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "User email and chat data are required", PublicMessage(err, ""))

	_, err = svc.CreateChat(ctx, &model.CreateChatRequest{UserEmail: "x@x.com", ChatData: &model.ChatInput{SessionID: "s"}})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateChatConflict(t *testing.T) {
	svc, _ := newTestChatService(t)
	createChat(t, svc, "x@x.com", "c1")

	_, err := svc.CreateChat(context.Background(), &model.CreateChatRequest{
		UserEmail: "y@y.com",
		ChatData:  &model.ChatInput{ID: "c1", SessionID: "session_c1"},
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, store.ErrDuplicate)
	assert.Equal(t, "Chat already exists", PublicMessage(err, ""))
}

func TestAddMessageDerivesPreviewAndTitle(t *testing.T) {
	svc, _ := newTestChatService(t)
	ctx := context.Background()
	createChat(t, svc, "x@x.com", "c1")

	long := strings.Repeat("a", 60)
	chat, err := svc.AddMessage(ctx, "x@x.com", "c1", &model.Message{ID: "m1", Text: long, IsUser: true})
	require.NoError(t, err)
	require.NotNil(t, chat.LastMessage)
	assert.Equal(t, strings.Repeat("a", 50)+"...", *chat.LastMessage)
	assert.Equal(t, strings.Repeat("a", 30)+"...", chat.Title)

	chat, err = svc.AddMessage(ctx, "x@x.com", "c1", &model.Message{ID: "m2", Text: "short"})
	require.NoError(t, err)
	assert.Equal(t, "short", *chat.LastMessage)

	chat, err = svc.AddMessage(ctx, "x@x.com", "c1", &model.Message{ID: "m3", Text: "second question", IsUser: true})
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 30)+"...", chat.Title)
}

func TestAddMessageIsAppendOnly(t *testing.T) {
	svc, _ := newTestChatService(t)
	ctx := context.Background()
	createChat(t, svc, "x@x.com", "c1")

	ids := []string{"m1", "m2", "m3", "m4", "m5"}
	for i, id := range ids {
		_, err := svc.AddMessage(ctx, "x@x.com", "c1", &model.Message{ID: id, Text: id, IsUser: i%2 == 0})
		require.NoError(t, err)
	}

	messages, err := svc.GetChatMessages(ctx, "x@x.com", "c1")
	require.NoError(t, err)
	require.Len(t, messages, len(ids))
	for i, id := range ids {
		assert.Equal(t, id, messages[i].ID)
		assert.False(t, messages[i].Timestamp.IsZero())
		assert.NotNil(t, messages[i].SourceDocuments)
	}
}

func TestAddMessageNotFound(t *testing.T) {
	svc, events := newTestChatService(t)
	ctx := context.Background()
	createChat(t, svc, "x@x.com", "c1")

	_, err := svc.AddMessage(ctx, "y@y.com", "c1", &model.Message{ID: "m1", Text: "hi", IsUser: true})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "Chat not found", PublicMessage(err, ""))

	_, err = svc.AddMessage(ctx, "x@x.com", "c1", nil)
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, []model.EventType{model.EventChatCreated}, events.types())
}

func TestEmailIsCaseInsensitive(t *testing.T) {
	svc, _ := newTestChatService(t)
	ctx := context.Background()
	createChat(t, svc, "X@X.com", "c1")

	_, err := svc.AddMessage(ctx, "x@x.COM", "c1", &model.Message{ID: "m1", Text: "hi", IsUser: true})
	require.NoError(t, err)

	list, err := svc.ListChats(ctx, "x@x.com")
	require.NoError(t, err)
	assert.Len(t, list.Chats, 1)
}

func TestUpdateChat(t *testing.T) {
	svc, _ := newTestChatService(t)
	ctx := context.Background()
	createChat(t, svc, "x@x.com", "c1")

	title := "Renamed"
	chat, err := svc.UpdateChat(ctx, "x@x.com", "c1", model.UpdateChatRequest{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", chat.Title)
	assert.Nil(t, chat.LastMessage)

	_, err = svc.UpdateChat(ctx, "x@x.com", "missing", model.UpdateChatRequest{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteChat(t *testing.T) {
	svc, events := newTestChatService(t)
	ctx := context.Background()
	createChat(t, svc, "x@x.com", "c1")

	err := svc.DeleteChat(ctx, "y@y.com", "c1")
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := svc.ListChats(ctx, "x@x.com")
	require.NoError(t, err)
	assert.Len(t, list.Chats, 1)

	require.NoError(t, svc.DeleteChat(ctx, "x@x.com", "c1"))

	list, err = svc.ListChats(ctx, "x@x.com")
	require.NoError(t, err)
	assert.Empty(t, list.Chats)

	assert.Equal(t, []model.EventType{model.EventChatCreated, model.EventChatDeleted}, events.types())
}

func TestBulkSaveReplacesChats(t *testing.T) {
	svc, events := newTestChatService(t)
	ctx := context.Background()
	createChat(t, svc, "x@x.com", "old")

	preview := "hello"
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	count, err := svc.BulkSave(ctx, &model.BulkSaveRequest{
		UserEmail: "x@x.com",
		Chats: []model.ChatInput{
			{ID: "a", SessionID: "session_a", Title: "First", CreatedAt: base, LastMessage: &preview},
			{ID: "b", SessionID: "session_b", CreatedAt: base.Add(time.Hour)},
		},
		Messages: map[string][]model.Message{
			"a": {
				{ID: "m1", Text: "hi", IsUser: true, Timestamp: base},
				{ID: "m2", Text: "hello", Timestamp: base.Add(time.Second)},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	list, err := svc.ListChats(ctx, "x@x.com")
	require.NoError(t, err)
	require.Len(t, list.Chats, 2)
	assert.Equal(t, "b", list.Chats[0].ID)
	assert.Equal(t, model.DefaultTitle, list.Chats[0].Title)
	assert.Equal(t, "a", list.Chats[1].ID)
	assert.Equal(t, "First", list.Chats[1].Title)
	assert.Equal(t, "hello", *list.Chats[1].LastMessage)
	assert.Len(t, list.Messages["a"], 2)
	assert.Empty(t, list.Messages["b"])
	assert.NotContains(t, list.Messages, "old")

	assert.Contains(t, events.types(), model.EventChatsSynced)
}

func TestBulkSaveIsAtomic(t *testing.T) {
	svc, _ := newTestChatService(t)
	ctx := context.Background()
	createChat(t, svc, "x@x.com", "keep")
	_, err := svc.AddMessage(ctx, "x@x.com", "keep", &model.Message{ID: "m1", Text: "hi", IsUser: true})
	require.NoError(t, err)

	_, err = svc.BulkSave(ctx, &model.BulkSaveRequest{
		UserEmail: "x@x.com",
		Chats: []model.ChatInput{
			{ID: "dup", SessionID: "s1"},
			{ID: "dup", SessionID: "s2"},
		},
		Messages: map[string][]model.Message{},
	})
	require.Error(t, err)
	assert.Equal(t, "Failed to save chats and messages", PublicMessage(err, ""))

	list, err := svc.ListChats(ctx, "x@x.com")
	require.NoError(t, err)
	require.Len(t, list.Chats, 1)
	assert.Equal(t, "keep", list.Chats[0].ID)
	assert.Equal(t, "hi", list.Chats[0].Title)
	assert.Len(t, list.Messages["keep"], 1)
}

func TestBulkSaveValidation(t *testing.T) {
	svc, _ := newTestChatService(t)

	_, err := svc.BulkSave(context.Background(), &model.BulkSaveRequest{UserEmail: "x@x.com", Messages: map[string][]model.Message{}})
	assert.ErrorIs(t, err, ErrValidation)

	count, err := svc.BulkSave(context.Background(), &model.BulkSaveRequest{
		UserEmail: "x@x.com",
		Chats:     []model.ChatInput{},
		Messages:  map[string][]model.Message{},
	})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	events := &recordingPublisher{err: errors.New("nats down")}
	svc := NewChatService(newTestStore(t), events, logger.NewNop())

	createChat(t, svc, "x@x.com", "c1")
	assert.Len(t, events.types(), 1)
}

func TestNilPublisher(t *testing.T) {
	svc := NewChatService(newTestStore(t), nil, logger.NewNop())
	createChat(t, svc, "x@x.com", "c1")
}
