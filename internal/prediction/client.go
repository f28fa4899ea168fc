// Package prediction talks to the service that answers chat questions.
package prediction

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/capitalize-ai/flowchat/internal/model"
)

// HistoryMessage is one earlier turn sent along with a question.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a prediction request.
type Request struct {
	Question       string           `json:"question"`
	ChatID         string           `json:"chatId,omitempty"`
	History        []HistoryMessage `json:"history"`
	OverrideConfig map[string]any   `json:"overrideConfig,omitempty"`
}

// Response is a prediction answer. Raw holds the upstream body when the
// provider returns JSON that should be relayed as is.
type Response struct {
	Text            string                 `json:"text"`
	Answer          string                 `json:"answer,omitempty"`
	SourceDocuments []model.SourceDocument `json:"sourceDocuments"`
	Raw             json.RawMessage        `json:"-"`
}

// Content returns the answer text, preferring text over answer.
func (r *Response) Content() string {
	if r.Text != "" {
		return r.Text
	}
	return r.Answer
}

// DecodeResponse reads the fields it knows from an upstream body and keeps
// the body in Raw. Fields of an unexpected type are left empty, and bodies
// that are not JSON objects only fill Raw.
func DecodeResponse(raw []byte) *Response {
	resp := &Response{Raw: json.RawMessage(raw)}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return resp
	}
	_ = json.Unmarshal(fields["text"], &resp.Text)
	_ = json.Unmarshal(fields["answer"], &resp.Answer)

	var docs []json.RawMessage
	if err := json.Unmarshal(fields["sourceDocuments"], &docs); err == nil {
		for _, d := range docs {
			var doc model.SourceDocument
			if err := json.Unmarshal(d, &doc); err == nil {
				resp.SourceDocuments = append(resp.SourceDocuments, doc)
			}
		}
	}
	return resp
}

// Client is implemented by prediction providers.
type Client interface {
	// Predict sends a question with its history and returns the answer.
	Predict(ctx context.Context, req *Request) (*Response, error)

	// Name returns the provider name.
	Name() string
}

// Provider is the type of prediction provider.
type Provider string

const (
	ProviderFlowise   Provider = "flowise"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Options configures NewClient.
type Options struct {
	FlowiseHost       string
	FlowiseChatflowID string
	FlowiseAPIKey     string
	OpenAIAPIKey      string
	AnthropicAPIKey   string
	Model             string
}

// NewClient creates the client for provider.
func NewClient(provider Provider, opts Options) (Client, error) {
	switch provider {
	case ProviderFlowise, "":
		return NewFlowiseClient(FlowiseConfig{
			Host:       opts.FlowiseHost,
			ChatflowID: opts.FlowiseChatflowID,
			APIKey:     opts.FlowiseAPIKey,
		})
	case ProviderOpenAI:
		return NewOpenAIClient(opts.OpenAIAPIKey, opts.Model)
	case ProviderAnthropic:
		return NewAnthropicClient(opts.AnthropicAPIKey, opts.Model)
	default:
		return nil, fmt.Errorf("unknown prediction provider %q", provider)
	}
}

// History converts stored messages into prediction history, dropping
// messages that were synthesized for failed requests.
func History(messages []model.Message) []HistoryMessage {
	out := make([]HistoryMessage, 0, len(messages))
	for _, m := range messages {
		if m.IsError {
			continue
		}
		role := "assistant"
		if m.IsUser {
			role = "user"
		}
		out = append(out, HistoryMessage{Role: role, Content: m.Text})
	}
	return out
}
