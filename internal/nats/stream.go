package nats

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/flowchat/internal/model"
)

const (
	// StreamName is the name of the chat events stream.
	StreamName = "CHATS"

	// SubjectPrefix is the prefix for all chat event subjects.
	SubjectPrefix = "chats"
)

// EventPublisher writes chat events to JetStream.
type EventPublisher struct {
	client *Client
}

// NewEventPublisher creates a publisher on client.
func NewEventPublisher(client *Client) *EventPublisher {
	return &EventPublisher{client: client}
}

// EnsureStream creates the chat events stream if it does not exist.
func (p *EventPublisher) EnsureStream(ctx context.Context) error {
	js := p.client.JetStream()

	if _, err := js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Chat and message change events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Publish sends event on its subject.
func (p *EventPublisher) Publish(ctx context.Context, event *model.ChatEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := p.client.JetStream().Publish(ctx, EventSubject(event), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// EventSubject returns chats.<user>.<chat>.<type>. Emails and chat ids may
// contain subject separators, so both tokens are hex encoded; "_" stands in
// for events that are not about a single chat.
func EventSubject(event *model.ChatEvent) string {
	chat := "_"
	if event.ChatID != "" {
		chat = subjectToken(event.ChatID)
	}
	eventType := strings.ReplaceAll(string(event.Type), ".", "_")
	return fmt.Sprintf("%s.%s.%s.%s", SubjectPrefix, subjectToken(event.UserEmail), chat, eventType)
}

// UserFilter matches every event of one user.
func UserFilter(userEmail string) string {
	return fmt.Sprintf("%s.%s.>", SubjectPrefix, subjectToken(userEmail))
}

func subjectToken(s string) string {
	return hex.EncodeToString([]byte(s))
}
