package chatsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/flowchat/internal/model"
	"github.com/capitalize-ai/flowchat/pkg/logger"
)

// DefaultHealthTTL is how long a backend health check result is reused.
const DefaultHealthTTL = 15 * time.Second

// Remote is the backend as seen by DurableStore.
type Remote interface {
	Store
	Health(ctx context.Context) error
	CreateChat(ctx context.Context, userEmail string, chat *model.Chat) error
	AddMessage(ctx context.Context, userEmail, chatID string, msg *model.Message) error
	DeleteChat(ctx context.Context, userEmail, chatID string) error
}

// DurableStore writes to the backend when a health check says it is up
// and to the local cache otherwise. A remote write that fails to reach the
// backend also lands in the cache.
type DurableStore struct {
	remote    Remote
	local     Store
	logger    *logger.Logger
	healthTTL time.Duration
	now       func() time.Time

	mu        sync.Mutex
	healthy   bool
	checkedAt time.Time
}

// NewDurableStore creates a durable store. remote may be nil to work
// offline only.
func NewDurableStore(remote Remote, local Store, log *logger.Logger) *DurableStore {
	return &DurableStore{
		remote:    remote,
		local:     local,
		logger:    log,
		healthTTL: DefaultHealthTTL,
		now:       time.Now,
	}
}

// Online reports whether the backend is currently selected.
func (d *DurableStore) Online(ctx context.Context) bool {
	if d.remote == nil {
		return false
	}

	d.mu.Lock()
	if !d.checkedAt.IsZero() && d.now().Sub(d.checkedAt) < d.healthTTL {
		healthy := d.healthy
		d.mu.Unlock()
		return healthy
	}
	d.mu.Unlock()

	err := d.remote.Health(ctx)
	if err != nil {
		d.logger.Debug("backend health check failed", zap.Error(err))
	}

	d.mu.Lock()
	d.healthy = err == nil
	d.checkedAt = d.now()
	d.mu.Unlock()
	return err == nil
}

func (d *DurableStore) markDown() {
	d.mu.Lock()
	d.healthy = false
	d.checkedAt = d.now()
	d.mu.Unlock()
}

// Load reads from the backend, or from the cache when the backend is down.
func (d *DurableStore) Load(ctx context.Context, userEmail string) (*Snapshot, error) {
	if d.Online(ctx) {
		snap, err := d.remote.Load(ctx, userEmail)
		if err == nil {
			return snap, nil
		}
		d.logger.Warn("failed to load chats from backend, using local cache", zap.Error(err))
		d.unreachable(err)
	}
	return d.local.Load(ctx, userEmail)
}

// Save bulk-saves snap to the backend, or to the cache when the backend is
// down or the write fails.
func (d *DurableStore) Save(ctx context.Context, userEmail string, snap *Snapshot) error {
	if d.Online(ctx) {
		err := d.remote.Save(ctx, userEmail, snap)
		if err == nil {
			return nil
		}
		d.logger.Warn("failed to save chats to backend, using local cache", zap.Error(err))
		d.unreachable(err)
	}
	if err := d.local.Save(ctx, userEmail, snap); err != nil {
		return fmt.Errorf("failed to save chats locally: %w", err)
	}
	return nil
}

// Record persists one change. When the backend cannot be reached, snap,
// which already includes the change, is written to the cache instead.
// A backend that answers with an error status is not retried locally.
func (d *DurableStore) Record(ctx context.Context, userEmail string, change Change, snap *Snapshot) error {
	if d.Online(ctx) {
		err := d.apply(ctx, userEmail, change)
		if err == nil {
			return nil
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return err
		}
		d.logger.Warn("backend unreachable, caching change locally",
			zap.String("change", string(change.Kind)),
			zap.Error(err),
		)
		d.markDown()
	}
	return d.local.Save(ctx, userEmail, snap)
}

func (d *DurableStore) apply(ctx context.Context, userEmail string, change Change) error {
	switch change.Kind {
	case ChangeCreateChat:
		return d.remote.CreateChat(ctx, userEmail, change.Chat)
	case ChangeAddMessage:
		return d.remote.AddMessage(ctx, userEmail, change.ChatID, change.Message)
	case ChangeDeleteChat:
		return d.remote.DeleteChat(ctx, userEmail, change.ChatID)
	default:
		return fmt.Errorf("unknown change %q", change.Kind)
	}
}

// unreachable marks the backend down unless err shows it answered.
func (d *DurableStore) unreachable(err error) {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		d.markDown()
	}
}
