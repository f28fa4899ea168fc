package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/capitalize-ai/flowchat/internal/chatsync"
	"github.com/capitalize-ai/flowchat/internal/prediction"
)

// ClientFlags selects the backend, the user and the local cache.
type ClientFlags struct {
	Server     string
	Email      string
	CachePath  string
	Timeout    time.Duration
	FlowiseURL string
	Chatflow   string
	FlowiseKey string
}

func NewClientFlags() *ClientFlags {
	cache := "flowchat-cache.db"
	if dir, err := os.UserCacheDir(); err == nil {
		cache = filepath.Join(dir, "flowchat", "cache.db")
	}
	return &ClientFlags{
		Server:    envOr("FLOWCHAT_SERVER", "http://localhost:8080"),
		Email:     os.Getenv("FLOWCHAT_EMAIL"),
		CachePath: cache,
		Timeout:   60 * time.Second,
	}
}

func (f *ClientFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.Server, "server", f.Server, "Chat backend base URL")
	fs.StringVar(&f.Email, "email", f.Email, "User email")
	fs.StringVar(&f.CachePath, "cache", f.CachePath, "Path of the local chat cache")
	fs.DurationVar(&f.Timeout, "timeout", f.Timeout, "Timeout for backend requests")
	fs.StringVar(&f.FlowiseURL, "flowise-host", f.FlowiseURL, "Ask Flowise directly instead of the backend proxy")
	fs.StringVar(&f.Chatflow, "chatflow", f.Chatflow, "Flowise chatflow id, used with --flowise-host")
	fs.StringVar(&f.FlowiseKey, "flowise-api-key", f.FlowiseKey, "Flowise API key, used with --flowise-host")
}

func (f *ClientFlags) Validate() error {
	if f.Email == "" {
		return errors.New("--email is required")
	}
	return nil
}

func (f *ClientFlags) Remote() *chatsync.RemoteStore {
	return chatsync.NewRemoteStore(f.Server, &http.Client{Timeout: f.Timeout})
}

// OpenSession opens the user's chats through the backend, falling back to
// the local cache. The returned close function releases the cache.
func (f *ClientFlags) OpenSession(ctx context.Context) (*chatsync.Session, func(), error) {
	if err := f.Validate(); err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(f.CachePath), 0o755); err != nil {
		return nil, nil, err
	}
	local, err := chatsync.NewLocalStore(f.CachePath)
	if err != nil {
		return nil, nil, err
	}

	remote := f.Remote()
	var predictor prediction.Client = remote.Predictor()
	if f.FlowiseURL != "" {
		predictor, err = prediction.NewFlowiseClient(prediction.FlowiseConfig{
			Host:       f.FlowiseURL,
			ChatflowID: f.Chatflow,
			APIKey:     f.FlowiseKey,
			HTTPClient: &http.Client{Timeout: f.Timeout},
		})
		if err != nil {
			local.Close()
			return nil, nil, err
		}
	}

	backend := chatsync.NewDurableStore(remote, local, log)
	session := chatsync.NewSession(f.Email, backend, predictor, log)
	if err := session.Open(ctx); err != nil {
		log.Warn(err.Error())
	}
	return session, func() { local.Close() }, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
