package chatsync

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/flowchat/internal/model"
)

func newTestLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSnapshot() *Snapshot {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	preview := "hello"
	return &Snapshot{
		Chats: []model.Chat{{ID: "c1", SessionID: "session_c1", Title: "hi", CreatedAt: created, LastMessage: &preview}},
		Messages: map[string][]model.Message{
			"c1": {
				{ID: "m1", Text: "hi", IsUser: true, Timestamp: created, SourceDocuments: []model.SourceDocument{}},
				{ID: "m2", Text: "hello", Timestamp: created.Add(time.Second), SourceDocuments: []model.SourceDocument{{PageContent: "doc"}}},
			},
		},
	}
}

func TestLocalStoreEmpty(t *testing.T) {
	s := newTestLocalStore(t)

	snap, err := s.Load(context.Background(), "x@x.com")
	require.NoError(t, err)
	assert.Empty(t, snap.Chats)
	assert.NotNil(t, snap.Messages)
}

func TestLocalStoreRoundTrip(t *testing.T) {
	s := newTestLocalStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "x@x.com", sampleSnapshot()))

	snap, err := s.Load(ctx, "x@x.com")
	require.NoError(t, err)
	require.Len(t, snap.Chats, 1)
	assert.Equal(t, "c1", snap.Chats[0].ID)
	assert.Equal(t, "hello", *snap.Chats[0].LastMessage)
	require.Len(t, snap.Messages["c1"], 2)
	assert.Equal(t, "doc", snap.Messages["c1"][1].SourceDocuments[0].PageContent)

	other, err := s.Load(ctx, "y@y.com")
	require.NoError(t, err)
	assert.Empty(t, other.Chats)

	require.NoError(t, s.Save(ctx, "x@x.com", NewSnapshot()))
	snap, err = s.Load(ctx, "x@x.com")
	require.NoError(t, err)
	assert.Empty(t, snap.Chats)
}

func TestLocalStorePersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	s, err := NewLocalStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "x@x.com", sampleSnapshot()))
	require.NoError(t, s.Close())

	s, err = NewLocalStore(path)
	require.NoError(t, err)
	defer s.Close()

	snap, err := s.Load(ctx, "x@x.com")
	require.NoError(t, err)
	assert.Len(t, snap.Chats, 1)
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "flowise-chats-x@x.com", ChatsKey("x@x.com"))
	assert.Equal(t, "flowise-messages-x@x.com", MessagesKey("x@x.com"))
}
