package chatsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/flowchat/internal/model"
	"github.com/capitalize-ai/flowchat/internal/prediction"
	"github.com/capitalize-ai/flowchat/pkg/logger"
)

const (
	// AutosaveInterval is how often a session bulk-saves its chats.
	AutosaveInterval = 30 * time.Second

	// FallbackReply is used when the prediction response has no text.
	FallbackReply = "Sorry, I could not process your request."

	// ErrorReply is the synthesized assistant message for a failed send.
	ErrorReply = "Sorry, there was an error processing your message. Please try again."
)

var (
	// ErrBusy is returned when a send is already in flight.
	ErrBusy = errors.New("a message is already being sent")
	// ErrNoChat is returned when no chat is selected or the id is unknown.
	ErrNoChat = errors.New("chat not found")
	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNotReady is returned before Open has finished.
	ErrNotReady = errors.New("session is not ready")
)

// State is the lifecycle state of a Session.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
)

// ChatState is the send state of one chat.
type ChatState string

const (
	ChatIdle    ChatState = "idle"
	ChatSending ChatState = "sending"
	ChatError   ChatState = "error"
)

// Backend persists a session's chats.
type Backend interface {
	Store
	Record(ctx context.Context, userEmail string, change Change, snap *Snapshot) error
}

// Session holds one signed-in user's chats.
type Session struct {
	email     string
	backend   Backend
	predictor prediction.Client
	logger    *logger.Logger
	now       func() time.Time

	mu         sync.Mutex
	state      State
	chats      []model.Chat
	messages   map[string][]model.Message
	chatStates map[string]ChatState
	active     string
	busy       bool

	autosaveCancel context.CancelFunc
	autosaveDone   chan struct{}
}

// NewSession creates a session for userEmail. Call Open before use.
func NewSession(userEmail string, backend Backend, predictor prediction.Client, log *logger.Logger) *Session {
	return &Session{
		email:      userEmail,
		backend:    backend,
		predictor:  predictor,
		logger:     log.With(zap.String("user_email", userEmail)),
		now:        time.Now,
		state:      StateLoading,
		chats:      []model.Chat{},
		messages:   map[string][]model.Message{},
		chatStates: map[string]ChatState{},
	}
}

// Open loads the user's chats and selects the newest one. The session is
// ready afterwards even when loading failed, with an empty chat list.
func (s *Session) Open(ctx context.Context) error {
	snap, err := s.backend.Load(ctx, s.email)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = StateReady
	if err != nil {
		return fmt.Errorf("failed to load chats: %w", err)
	}

	snap.normalize()
	s.chats = snap.Chats
	s.messages = snap.Messages
	for _, c := range s.chats {
		s.chatStates[c.ID] = ChatIdle
		if s.messages[c.ID] == nil {
			s.messages[c.ID] = []model.Message{}
		}
	}
	if len(s.chats) > 0 {
		s.active = s.chats[0].ID
	}
	return nil
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ChatState returns the send state of a chat.
func (s *Session) ChatState(chatID string) ChatState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatStates[chatID]
}

// Chats returns the chat list, newest first.
func (s *Session) Chats() []model.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Chat(nil), s.chats...)
}

// Messages returns the messages of a chat.
func (s *Session) Messages(chatID string) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.messages[chatID]...)
}

// Active returns the selected chat id, or "" when there is none.
func (s *Session) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Select makes chatID the active chat.
func (s *Session) Select(chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(chatID) < 0 {
		return ErrNoChat
	}
	s.active = chatID
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// NewChat creates an empty chat at the top of the list and selects it.
func (s *Session) NewChat(ctx context.Context) (*model.Chat, error) {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return nil, ErrNotReady
	}

	now := s.now()
	id := newChatID(now)
	chat := model.Chat{
		ID:        id,
		SessionID: "session_" + id,
		Title:     model.DefaultTitle,
		UserEmail: s.email,
		CreatedAt: now.UTC(),
	}

	s.chats = append([]model.Chat{chat}, s.chats...)
	s.messages[id] = []model.Message{}
	s.chatStates[id] = ChatIdle
	s.active = id
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.record(ctx, Change{Kind: ChangeCreateChat, Chat: &chat, ChatID: id}, snap)
	return &chat, nil
}

// Send appends text as a user message to the active chat, asks the
// predictor for a reply and appends it. Both messages are persisted as
// soon as they are appended. A failed prediction produces an error message
// instead of an error, so the returned error is only set when nothing was
// sent.
func (s *Session) Send(ctx context.Context, text string) (*model.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return nil, ErrNotReady
	}
	if s.busy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	chatID := s.active
	idx := s.indexOf(chatID)
	if idx < 0 {
		s.mu.Unlock()
		return nil, ErrNoChat
	}

	s.busy = true
	s.chatStates[chatID] = ChatSending

	history := prediction.History(s.messages[chatID])
	sessionID := s.chats[idx].SessionID
	userMsg := model.Message{
		ID:              uuid.NewString(),
		Text:            text,
		IsUser:          true,
		Timestamp:       s.now().UTC(),
		SourceDocuments: []model.SourceDocument{},
	}
	s.appendLocked(idx, userMsg)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.record(ctx, Change{Kind: ChangeAddMessage, ChatID: chatID, Message: &userMsg}, snap)

	reply, state := s.predict(ctx, text, sessionID, history)

	s.mu.Lock()
	s.busy = false
	idx = s.indexOf(chatID)
	if idx < 0 {
		// Deleted while the prediction was in flight.
		s.mu.Unlock()
		return &reply, nil
	}
	s.chatStates[chatID] = state
	s.appendLocked(idx, reply)
	snap = s.snapshotLocked()
	s.mu.Unlock()

	s.record(ctx, Change{Kind: ChangeAddMessage, ChatID: chatID, Message: &reply}, snap)
	return &reply, nil
}

func (s *Session) predict(ctx context.Context, question, sessionID string, history []prediction.HistoryMessage) (model.Message, ChatState) {
	resp, err := s.predictor.Predict(ctx, &prediction.Request{
		Question: question,
		ChatID:   sessionID,
		History:  history,
	})
	if err != nil {
		s.logger.Warn("prediction failed", zap.Error(err))
		return model.Message{
			ID:              uuid.NewString(),
			Text:            ErrorReply,
			Timestamp:       s.now().UTC(),
			IsError:         true,
			SourceDocuments: []model.SourceDocument{},
		}, ChatError
	}

	text := resp.Content()
	if text == "" {
		text = FallbackReply
	}
	docs := resp.SourceDocuments
	if docs == nil {
		docs = []model.SourceDocument{}
	}
	return model.Message{
		ID:              uuid.NewString(),
		Text:            text,
		Timestamp:       s.now().UTC(),
		SourceDocuments: docs,
	}, ChatIdle
}

// Delete removes a chat. When it was active, the newest remaining chat
// becomes active.
func (s *Session) Delete(ctx context.Context, chatID string) error {
	s.mu.Lock()
	idx := s.indexOf(chatID)
	if idx < 0 {
		s.mu.Unlock()
		return ErrNoChat
	}

	s.chats = append(s.chats[:idx:idx], s.chats[idx+1:]...)
	delete(s.messages, chatID)
	delete(s.chatStates, chatID)
	if s.active == chatID {
		s.active = ""
		if len(s.chats) > 0 {
			s.active = s.chats[0].ID
		}
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.record(ctx, Change{Kind: ChangeDeleteChat, ChatID: chatID}, snap)
	return nil
}

// Save bulk-saves the whole session.
func (s *Session) Save(ctx context.Context) error {
	return s.backend.Save(ctx, s.email, s.Snapshot())
}

// StartAutosave saves every interval while the session has chats. It stops
// when ctx is cancelled or the session signs out.
func (s *Session) StartAutosave(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	if s.autosaveCancel != nil {
		s.autosaveCancel()
	}
	s.autosaveCancel = cancel
	s.autosaveDone = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !s.hasChats() {
					continue
				}
				if err := s.Save(ctx); err != nil {
					s.logger.Warn("autosave failed", zap.Error(err))
				}
			}
		}
	}()
}

// StopAutosave stops the autosave loop and waits for it to exit.
func (s *Session) StopAutosave() {
	s.mu.Lock()
	cancel, done := s.autosaveCancel, s.autosaveDone
	s.autosaveCancel, s.autosaveDone = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// SignOut stops autosave and makes a final save.
func (s *Session) SignOut(ctx context.Context) error {
	s.StopAutosave()
	return s.Save(ctx)
}

func (s *Session) hasChats() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats) > 0
}

// record persists a change. Failures are logged; the in-memory state stays
// authoritative until the next save.
func (s *Session) record(ctx context.Context, change Change, snap *Snapshot) {
	if err := s.backend.Record(ctx, s.email, change, snap); err != nil {
		s.logger.Warn("failed to persist change",
			zap.String("change", string(change.Kind)),
			zap.String("chat_id", change.ChatID),
			zap.Error(err),
		)
	}
}

func (s *Session) appendLocked(idx int, msg model.Message) {
	chat := &s.chats[idx]
	chat.Messages = s.messages[chat.ID]
	chat.Append(msg)
	s.messages[chat.ID] = chat.Messages
	chat.Messages = nil
}

func (s *Session) indexOf(chatID string) int {
	for i := range s.chats {
		if s.chats[i].ID == chatID {
			return i
		}
	}
	return -1
}

func (s *Session) snapshotLocked() *Snapshot {
	snap := &Snapshot{Chats: s.chats, Messages: s.messages}
	return snap.Clone()
}

// newChatID returns "<unix millis>_<9 random chars>".
func newChatID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%d_%s", now.UnixMilli(), suffix)
}
