package prediction

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"

	"github.com/capitalize-ai/flowchat/internal/model"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient answers questions with an OpenAI chat model.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(apiKey, chatModel string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}
	return newOpenAIClient(openai.DefaultConfig(apiKey), chatModel), nil
}

func newOpenAIClient(cfg openai.ClientConfig, chatModel string) *OpenAIClient {
	if chatModel == "" {
		chatModel = defaultOpenAIModel
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  chatModel,
	}
}

// Name returns the provider name.
func (c *OpenAIClient) Name() string {
	return string(ProviderOpenAI)
}

// Predict sends the history followed by the question as a chat completion.
func (c *OpenAIClient) Predict(ctx context.Context, req *Request) (*Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+1)
	for _, msg := range req.History {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Question,
	})

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: messages,
	})
	if err != nil {
		return nil, err
	}

	var content string
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	return &Response{
		Text:            content,
		SourceDocuments: []model.SourceDocument{},
	}, nil
}
