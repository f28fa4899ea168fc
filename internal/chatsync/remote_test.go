package chatsync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/flowchat/internal/auth"
	"github.com/capitalize-ai/flowchat/internal/handler"
	"github.com/capitalize-ai/flowchat/internal/model"
	"github.com/capitalize-ai/flowchat/internal/prediction"
	"github.com/capitalize-ai/flowchat/internal/service"
	"github.com/capitalize-ai/flowchat/internal/store"
	"github.com/capitalize-ai/flowchat/pkg/logger"
)

type stubPredictor struct {
	reply string
	err   error
	calls []*prediction.Request
}

func (p *stubPredictor) Predict(ctx context.Context, req *prediction.Request) (*prediction.Response, error) {
	p.calls = append(p.calls, req)
	if p.err != nil {
		return nil, p.err
	}
	return &prediction.Response{Text: p.reply, SourceDocuments: []model.SourceDocument{}}, nil
}

func (p *stubPredictor) Name() string { return "stub" }

func newBackend(t *testing.T, predictor prediction.Client) *httptest.Server {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	log := logger.NewNop()
	issuer := auth.NewIssuer("secret", time.Hour)
	srv := httptest.NewServer(handler.NewRouter(handler.RouterConfig{
		Health:     handler.NewHealthHandler(st, nil),
		Auth:       handler.NewAuthHandler(service.NewAuthService(st, issuer, log), log),
		Chats:      handler.NewChatHandler(service.NewChatService(st, nil, log), log),
		Prediction: handler.NewPredictionHandler(predictor, nil, handler.DocumentConfig{}, log),
		Issuer:     issuer,
		Logger:     log,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteStoreAgainstBackend(t *testing.T) {
	srv := newBackend(t, &stubPredictor{reply: "pong"})
	remote := NewRemoteStore(srv.URL, srv.Client())
	ctx := context.Background()

	require.NoError(t, remote.Health(ctx))

	snap, err := remote.Load(ctx, "x@x.com")
	require.NoError(t, err)
	assert.Empty(t, snap.Chats)

	chat := &model.Chat{ID: "c1", SessionID: "session_c1", Title: model.DefaultTitle, CreatedAt: time.Now().UTC()}
	require.NoError(t, remote.CreateChat(ctx, "x@x.com", chat))

	err = remote.CreateChat(ctx, "x@x.com", chat)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusConflict, statusErr.StatusCode)
	assert.Equal(t, "Chat already exists", statusErr.Message)

	require.NoError(t, remote.AddMessage(ctx, "x@x.com", "c1", &model.Message{ID: "m1", Text: "hi", IsUser: true, Timestamp: time.Now()}))

	snap, err = remote.Load(ctx, "x@x.com")
	require.NoError(t, err)
	require.Len(t, snap.Chats, 1)
	assert.Equal(t, "hi", snap.Chats[0].Title)
	assert.Len(t, snap.Messages["c1"], 1)

	snap.Chats = append(snap.Chats, model.Chat{ID: "c2", SessionID: "session_c2", Title: "Other", CreatedAt: time.Now().UTC()})
	require.NoError(t, remote.Save(ctx, "x@x.com", snap))

	snap, err = remote.Load(ctx, "x@x.com")
	require.NoError(t, err)
	assert.Len(t, snap.Chats, 2)

	require.NoError(t, remote.DeleteChat(ctx, "x@x.com", "c1"))
	err = remote.DeleteChat(ctx, "x@x.com", "c1")
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestRemotePredictor(t *testing.T) {
	predictor := &stubPredictor{reply: "pong"}
	srv := newBackend(t, predictor)

	resp, err := NewRemoteStore(srv.URL, srv.Client()).Predictor().Predict(context.Background(), &prediction.Request{
		Question: "ping",
		ChatID:   "session_c1",
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Content())
	require.Len(t, predictor.calls, 1)
	assert.Equal(t, "session_c1", predictor.calls[0].ChatID)
}

func TestRemoteLogin(t *testing.T) {
	srv := newBackend(t, &stubPredictor{})
	remote := NewRemoteStore(srv.URL, srv.Client())

	resp, err := remote.Login(context.Background(), "nobody@x.com", "pw")
	require.NoError(t, err)
	assert.False(t, resp.Success)
}
