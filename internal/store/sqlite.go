package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/capitalize-ai/flowchat/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL,
    role TEXT NOT NULL CHECK (role IN ('admin', 'user')),
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS chats (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT 'New Chat',
    user_email TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    updated_at DATETIME NOT NULL,
    last_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_chats_user_created ON chats (user_email, created_at DESC);

CREATE TABLE IF NOT EXISTS messages (
    chat_id TEXT NOT NULL REFERENCES chats (id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    id TEXT NOT NULL,
    text TEXT NOT NULL,
    is_user BOOLEAN NOT NULL,
    timestamp DATETIME NOT NULL,
    is_error BOOLEAN NOT NULL DEFAULT FALSE,
    source_documents TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (chat_id, position)
);
`

// SQLiteStore is a Store backed by a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at dataSourceName (":memory:" works) and
// creates the schema.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and in-memory
	// databases are per connection.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err = s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}
	_, err := s.db.Exec(sqliteSchema)
	return err
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateUser inserts a user. Returns ErrDuplicate when the email is taken.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *model.User) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, email, password_hash, role, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		user.ID, user.Email, user.PasswordHash, string(user.Role), user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", mapSQLiteError(err))
	}
	return nil
}

// GetUserByEmail looks a user up by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	var role string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, password_hash, role, created_at, updated_at FROM users WHERE email = ?", email).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &role, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	user.Role = model.Role(role)
	return &user, nil
}

// ListChats returns the user's chats newest first with their messages.
func (s *SQLiteStore) ListChats(ctx context.Context, userEmail string) ([]model.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, session_id, title, user_email, created_at, updated_at, last_message FROM chats WHERE user_email = ? ORDER BY created_at DESC, rowid DESC",
		userEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}

	chats := []model.Chat{}
	index := map[string]int{}
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		chat.Messages = []model.Message{}
		index[chat.ID] = len(chats)
		chats = append(chats, *chat)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate chats: %w", err)
	}
	rows.Close()

	msgRows, err := s.db.QueryContext(ctx, `
        SELECT m.chat_id, m.id, m.text, m.is_user, m.timestamp, m.is_error, m.source_documents
        FROM messages m JOIN chats c ON c.id = m.chat_id
        WHERE c.user_email = ?
        ORDER BY m.chat_id, m.position`, userEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer msgRows.Close()

	for msgRows.Next() {
		var chatID string
		msg, err := scanMessage(msgRows, &chatID)
		if err != nil {
			return nil, err
		}
		if i, ok := index[chatID]; ok {
			chats[i].Messages = append(chats[i].Messages, *msg)
		}
	}
	if err := msgRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return chats, nil
}

// GetChat returns one chat with its messages.
func (s *SQLiteStore) GetChat(ctx context.Context, userEmail, chatID string) (*model.Chat, error) {
	chat, err := getChat(ctx, s.db, userEmail, chatID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT chat_id, id, text, is_user, timestamp, is_error, source_documents FROM messages WHERE chat_id = ? ORDER BY position",
		chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	chat.Messages = []model.Message{}
	for rows.Next() {
		var ignored string
		msg, err := scanMessage(rows, &ignored)
		if err != nil {
			return nil, err
		}
		chat.Messages = append(chat.Messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return chat, nil
}

// CreateChat inserts a chat with no messages. Returns ErrDuplicate when the
// id is already used by any user.
func (s *SQLiteStore) CreateChat(ctx context.Context, chat *model.Chat) error {
	if err := insertChat(ctx, s.db, chat); err != nil {
		return err
	}
	return nil
}

// AppendMessage adds msg at the end of the chat in one transaction.
func (s *SQLiteStore) AppendMessage(ctx context.Context, userEmail, chatID string, msg model.Message) (*model.Chat, error) {
	var chat *model.Chat
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		chat, err = getChat(ctx, tx, userEmail, chatID)
		if err != nil {
			return err
		}

		var hadUser bool
		var next int64
		err = tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(is_user), 0), COALESCE(MAX(position) + 1, 0) FROM messages WHERE chat_id = ?",
			chatID).Scan(&hadUser, &next)
		if err != nil {
			return fmt.Errorf("failed to inspect messages: %w", err)
		}

		if err := insertMessage(ctx, tx, chatID, next, msg); err != nil {
			return err
		}

		chat.ApplyMessage(msg, hadUser)
		chat.UpdatedAt = time.Now().UTC()
		_, err = tx.ExecContext(ctx,
			"UPDATE chats SET title = ?, last_message = ?, updated_at = ? WHERE id = ?",
			chat.Title, chat.LastMessage, chat.UpdatedAt, chatID)
		if err != nil {
			return fmt.Errorf("failed to update chat: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// UpdateChat applies the non-nil fields of update.
func (s *SQLiteStore) UpdateChat(ctx context.Context, userEmail, chatID string, update model.UpdateChatRequest) (*model.Chat, error) {
	var chat *model.Chat
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		chat, err = getChat(ctx, tx, userEmail, chatID)
		if err != nil {
			return err
		}
		if update.Title != nil {
			chat.Title = *update.Title
		}
		if update.LastMessage != nil {
			chat.LastMessage = update.LastMessage
		}
		chat.UpdatedAt = time.Now().UTC()

		_, err = tx.ExecContext(ctx,
			"UPDATE chats SET title = ?, last_message = ?, updated_at = ? WHERE id = ?",
			chat.Title, chat.LastMessage, chat.UpdatedAt, chatID)
		if err != nil {
			return fmt.Errorf("failed to update chat: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chat, nil
}

// DeleteChat removes a chat and its messages.
func (s *SQLiteStore) DeleteChat(ctx context.Context, userEmail, chatID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM chats WHERE id = ? AND user_email = ?", chatID, userEmail)
		if err != nil {
			return fmt.Errorf("failed to delete chat: %w", err)
		}
		affected, _ := res.RowsAffected()
		if affected == 0 {
			return ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE chat_id = ?", chatID); err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		return nil
	})
}

// ReplaceChats swaps the user's whole chat set in one transaction.
func (s *SQLiteStore) ReplaceChats(ctx context.Context, userEmail string, chats []model.Chat) (int, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM messages WHERE chat_id IN (SELECT id FROM chats WHERE user_email = ?)", userEmail); err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM chats WHERE user_email = ?", userEmail); err != nil {
			return fmt.Errorf("failed to delete chats: %w", err)
		}

		for i := range chats {
			chat := chats[i]
			chat.UserEmail = userEmail
			if err := insertChat(ctx, tx, &chat); err != nil {
				return err
			}
			for pos, msg := range chat.Messages {
				if err := insertMessage(ctx, tx, chat.ID, int64(pos), msg); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(chats), nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func getChat(ctx context.Context, q queryer, userEmail, chatID string) (*model.Chat, error) {
	row := q.QueryRowContext(ctx,
		"SELECT id, session_id, title, user_email, created_at, updated_at, last_message FROM chats WHERE id = ? AND user_email = ?",
		chatID, userEmail)
	chat, err := scanChat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return chat, nil
}

func scanChat(row scanner) (*model.Chat, error) {
	var chat model.Chat
	var last sql.NullString
	if err := row.Scan(&chat.ID, &chat.SessionID, &chat.Title, &chat.UserEmail, &chat.CreatedAt, &chat.UpdatedAt, &last); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan chat row: %w", err)
	}
	if last.Valid {
		chat.LastMessage = &last.String
	}
	return &chat, nil
}

func scanMessage(row scanner, chatID *string) (*model.Message, error) {
	var msg model.Message
	var docs string
	if err := row.Scan(chatID, &msg.ID, &msg.Text, &msg.IsUser, &msg.Timestamp, &msg.IsError, &docs); err != nil {
		return nil, fmt.Errorf("failed to scan message row: %w", err)
	}
	msg.SourceDocuments = []model.SourceDocument{}
	if docs != "" {
		if err := json.Unmarshal([]byte(docs), &msg.SourceDocuments); err != nil {
			return nil, fmt.Errorf("failed to decode source documents: %w", err)
		}
	}
	return &msg, nil
}

func insertChat(ctx context.Context, e execer, chat *model.Chat) error {
	_, err := e.ExecContext(ctx,
		"INSERT INTO chats (id, session_id, title, user_email, created_at, updated_at, last_message) VALUES (?, ?, ?, ?, ?, ?, ?)",
		chat.ID, chat.SessionID, chat.Title, chat.UserEmail, chat.CreatedAt.UTC(), chat.UpdatedAt.UTC(), chat.LastMessage)
	if err != nil {
		return fmt.Errorf("failed to insert chat %s: %w", chat.ID, mapSQLiteError(err))
	}
	return nil
}

func insertMessage(ctx context.Context, e execer, chatID string, position int64, msg model.Message) error {
	docs := msg.SourceDocuments
	if docs == nil {
		docs = []model.SourceDocument{}
	}
	encoded, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("failed to encode source documents: %w", err)
	}

	_, err = e.ExecContext(ctx,
		"INSERT INTO messages (chat_id, position, id, text, is_user, timestamp, is_error, source_documents) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		chatID, position, msg.ID, msg.Text, msg.IsUser, msg.Timestamp.UTC(), msg.IsError, string(encoded))
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", mapSQLiteError(err))
	}
	return nil
}

func mapSQLiteError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
