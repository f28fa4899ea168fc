package main

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/flowchat/internal/chatsync"
	"github.com/capitalize-ai/flowchat/internal/prediction"
	"github.com/capitalize-ai/flowchat/pkg/logger"
)

type echoPredictor struct{}

func (echoPredictor) Predict(ctx context.Context, req *prediction.Request) (*prediction.Response, error) {
	return &prediction.Response{Text: "echo: " + req.Question}, nil
}

func (echoPredictor) Name() string { return "echo" }

func newOfflineSession(t *testing.T) *chatsync.Session {
	t.Helper()
	local, err := chatsync.NewLocalStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })

	s := chatsync.NewSession("x@x.com", chatsync.NewDurableStore(nil, local, logger.NewNop()), echoPredictor{}, logger.NewNop())
	require.NoError(t, s.Open(context.Background()))
	return s
}

func TestREPL(t *testing.T) {
	s := newOfflineSession(t)
	var out bytes.Buffer

	in := strings.NewReader("/new\nhello\n/list\n/quit\nignored\n")
	require.NoError(t, repl(context.Background(), s, in, &out))

	require.Len(t, s.Chats(), 1)
	chatID := s.Chats()[0].ID
	assert.Contains(t, out.String(), "started "+chatID)
	assert.Contains(t, out.String(), "assistant: echo: hello")
	assert.Contains(t, out.String(), "* "+chatID)
	assert.Len(t, s.Messages(chatID), 2)
}

func TestREPLEndsAtEOF(t *testing.T) {
	s := newOfflineSession(t)
	var out bytes.Buffer

	require.NoError(t, repl(context.Background(), s, strings.NewReader("/help\n"), &out))
	assert.Contains(t, out.String(), "/delete CHAT_ID")
}

func TestREPLStopsReadingAfterQuit(t *testing.T) {
	s := newOfflineSession(t)
	before := runtime.NumGoroutine()

	in := strings.NewReader("/quit\nleft over\nand more\n")
	require.NoError(t, repl(context.Background(), s, in, io.Discard))

	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, time.Second, 10*time.Millisecond)
}

func TestREPLReturnsOnCancel(t *testing.T) {
	s := newOfflineSession(t)
	ctx, cancel := context.WithCancel(context.Background())
	pr, pw := io.Pipe()
	defer pw.Close()

	done := make(chan error, 1)
	go func() { done <- repl(ctx, s, pr, io.Discard) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("repl did not return after cancel")
	}
}

func TestRunCommandErrors(t *testing.T) {
	s := newOfflineSession(t)
	var out bytes.Buffer

	done, err := runCommand(context.Background(), s, "/bogus", &out)
	assert.False(t, done)
	assert.EqualError(t, err, "unknown command /bogus")

	_, err = runCommand(context.Background(), s, "/open missing", &out)
	assert.ErrorIs(t, err, chatsync.ErrNoChat)

	_, err = runCommand(context.Background(), s, "/delete missing", &out)
	assert.ErrorIs(t, err, chatsync.ErrNoChat)
}

func TestClientFlagsValidate(t *testing.T) {
	f := NewClientFlags()
	f.Email = ""
	assert.Error(t, f.Validate())

	f.Email = "x@x.com"
	assert.NoError(t, f.Validate())
}
