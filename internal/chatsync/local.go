package chatsync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const localSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

// ChatsKey is the cache key holding a user's chat list.
func ChatsKey(userEmail string) string {
	return "flowise-chats-" + userEmail
}

// MessagesKey is the cache key holding a user's messages by chat id.
func MessagesKey(userEmail string) string {
	return "flowise-messages-" + userEmail
}

// LocalStore is the on-device cache: a SQLite key/value table holding two
// JSON blobs per user.
type LocalStore struct {
	db *sql.DB
}

// NewLocalStore opens or creates the cache at path.
func NewLocalStore(path string) (*LocalStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(localSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache schema: %w", err)
	}
	return &LocalStore{db: db}, nil
}

// Close closes the cache.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// Load returns the cached snapshot, or an empty one when nothing is cached.
func (s *LocalStore) Load(ctx context.Context, userEmail string) (*Snapshot, error) {
	snap := NewSnapshot()

	if err := s.get(ctx, ChatsKey(userEmail), &snap.Chats); err != nil {
		return nil, err
	}
	if err := s.get(ctx, MessagesKey(userEmail), &snap.Messages); err != nil {
		return nil, err
	}
	return snap.normalize(), nil
}

// Save overwrites both blobs of the user in one transaction.
func (s *LocalStore) Save(ctx context.Context, userEmail string, snap *Snapshot) error {
	snap = snap.Clone().normalize()

	chats, err := json.Marshal(snap.Chats)
	if err != nil {
		return fmt.Errorf("failed to encode chats: %w", err)
	}
	messages, err := json.Marshal(snap.Messages)
	if err != nil {
		return fmt.Errorf("failed to encode messages: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const upsert = "INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value"
	if _, err := tx.ExecContext(ctx, upsert, ChatsKey(userEmail), string(chats)); err != nil {
		return fmt.Errorf("failed to cache chats: %w", err)
	}
	if _, err := tx.ExecContext(ctx, upsert, MessagesKey(userEmail), string(messages)); err != nil {
		return fmt.Errorf("failed to cache messages: %w", err)
	}
	return tx.Commit()
}

func (s *LocalStore) get(ctx context.Context, key string, v interface{}) error {
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}
