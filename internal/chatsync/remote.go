package chatsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/capitalize-ai/flowchat/internal/model"
	"github.com/capitalize-ai/flowchat/internal/prediction"
)

// StatusError is returned when the backend answers with a non-2xx status.
// It means the backend is reachable but rejected the request.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// RemoteStore talks to the chat backend over HTTP.
type RemoteStore struct {
	baseURL string
	http    *http.Client
}

// NewRemoteStore creates a client for the backend at baseURL.
func NewRemoteStore(baseURL string, httpClient *http.Client) *RemoteStore {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RemoteStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

// Health calls GET /health.
func (s *RemoteStore) Health(ctx context.Context) error {
	return s.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Load fetches every chat of the user.
func (s *RemoteStore) Load(ctx context.Context, userEmail string) (*Snapshot, error) {
	snap := NewSnapshot()
	if err := s.do(ctx, http.MethodGet, "/api/chats/"+url.PathEscape(userEmail), nil, snap); err != nil {
		return nil, err
	}
	return snap.normalize(), nil
}

// Save replaces every chat of the user with snap.
func (s *RemoteStore) Save(ctx context.Context, userEmail string, snap *Snapshot) error {
	snap = snap.Clone().normalize()

	chats := make([]model.ChatInput, 0, len(snap.Chats))
	for _, c := range snap.Chats {
		chats = append(chats, chatInput(&c))
	}

	return s.do(ctx, http.MethodPost, "/api/chats/bulk-save", &model.BulkSaveRequest{
		UserEmail: userEmail,
		Chats:     chats,
		Messages:  snap.Messages,
	}, nil)
}

// CreateChat registers a new chat.
func (s *RemoteStore) CreateChat(ctx context.Context, userEmail string, chat *model.Chat) error {
	in := chatInput(chat)
	return s.do(ctx, http.MethodPost, "/api/chats", &model.CreateChatRequest{
		UserEmail: userEmail,
		ChatData:  &in,
	}, nil)
}

// AddMessage appends msg to a chat.
func (s *RemoteStore) AddMessage(ctx context.Context, userEmail, chatID string, msg *model.Message) error {
	return s.do(ctx, http.MethodPost, chatPath(userEmail, chatID)+"/messages", &model.AddMessageRequest{
		MessageData: msg,
	}, nil)
}

// DeleteChat removes a chat.
func (s *RemoteStore) DeleteChat(ctx context.Context, userEmail, chatID string) error {
	return s.do(ctx, http.MethodDelete, chatPath(userEmail, chatID), nil, nil)
}

// Login signs in against the backend.
func (s *RemoteStore) Login(ctx context.Context, email, password string) (*model.LoginResponse, error) {
	var resp model.LoginResponse
	err := s.do(ctx, http.MethodPost, "/api/user/login", &model.CredentialsRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Predictor returns a prediction client that goes through the backend proxy.
func (s *RemoteStore) Predictor() *RemotePredictor {
	return &RemotePredictor{remote: s}
}

// RemotePredictor sends questions to the backend's prediction proxy.
type RemotePredictor struct {
	remote *RemoteStore
}

// Name returns the provider name.
func (p *RemotePredictor) Name() string {
	return "backend"
}

// Predict posts req to /api/prediction.
func (p *RemotePredictor) Predict(ctx context.Context, req *prediction.Request) (*prediction.Response, error) {
	var raw json.RawMessage
	if err := p.remote.do(ctx, http.MethodPost, "/api/prediction", req, &raw); err != nil {
		return nil, err
	}
	return prediction.DecodeResponse(raw), nil
}

func (s *RemoteStore) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func errorMessage(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(data))
}

func chatPath(userEmail, chatID string) string {
	return "/api/chats/" + url.PathEscape(userEmail) + "/" + url.PathEscape(chatID)
}

func chatInput(c *model.Chat) model.ChatInput {
	return model.ChatInput{
		ID:          c.ID,
		SessionID:   c.SessionID,
		Title:       c.Title,
		CreatedAt:   c.CreatedAt,
		LastMessage: c.LastMessage,
	}
}
