package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/capitalize-ai/flowchat/internal/model"
)

const (
	usersCollection = "users"
	chatsCollection = "chats"
)

// MongoStore is a Store backed by MongoDB. Messages are embedded in their
// chat document. ReplaceChats needs a replica set for transactions.
type MongoStore struct {
	client *mongo.Client
	users  *mongo.Collection
	chats  *mongo.Collection
}

// NewMongoStore connects to uri, verifies the connection and creates indexes.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client: client,
		users:  db.Collection(usersCollection),
		chats:  db.Collection(chatsCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}

	_, err = s.chats.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userEmail", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "id", Value: 1}, {Key: "userEmail", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create chat indexes: %w", err)
	}
	return nil
}

// Ping checks the server connection.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// CreateUser inserts a user. Returns ErrDuplicate when the email is taken.
func (s *MongoStore) CreateUser(ctx context.Context, user *model.User) error {
	if _, err := s.users.InsertOne(ctx, user); err != nil {
		return fmt.Errorf("failed to insert user: %w", mapMongoError(err))
	}
	return nil
}

// GetUserByEmail looks a user up by email.
func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// ListChats returns the user's chats newest first with their messages.
func (s *MongoStore) ListChats(ctx context.Context, userEmail string) ([]model.Chat, error) {
	cursor, err := s.chats.Find(ctx, chatOwnerFilter(userEmail),
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find chats: %w", err)
	}
	defer cursor.Close(ctx)

	chats := []model.Chat{}
	if err := cursor.All(ctx, &chats); err != nil {
		return nil, fmt.Errorf("failed to decode chats: %w", err)
	}
	for i := range chats {
		normalizeMessages(&chats[i])
	}
	return chats, nil
}

// GetChat returns one chat with its messages.
func (s *MongoStore) GetChat(ctx context.Context, userEmail, chatID string) (*model.Chat, error) {
	var chat model.Chat
	if err := s.chats.FindOne(ctx, chatFilter(userEmail, chatID)).Decode(&chat); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find chat: %w", err)
	}
	normalizeMessages(&chat)
	return &chat, nil
}

// CreateChat inserts a chat with no messages.
func (s *MongoStore) CreateChat(ctx context.Context, chat *model.Chat) error {
	doc := *chat
	doc.Messages = []model.Message{}
	if _, err := s.chats.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to insert chat %s: %w", chat.ID, mapMongoError(err))
	}
	return nil
}

// AppendMessage pushes msg onto the chat's embedded messages. The title is
// derived in a conditional update so that only one first user message can
// ever change it, even when two arrive together.
func (s *MongoStore) AppendMessage(ctx context.Context, userEmail, chatID string, msg model.Message) (*model.Chat, error) {
	if msg.SourceDocuments == nil {
		msg.SourceDocuments = []model.SourceDocument{}
	}

	session, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	result, err := session.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		if msg.IsUser {
			_, err := s.chats.UpdateOne(txCtx, titleClaimFilter(userEmail, chatID), titleClaimUpdate(msg))
			if err != nil {
				return nil, fmt.Errorf("failed to update title: %w", err)
			}
		}

		var chat model.Chat
		err := s.chats.FindOneAndUpdate(txCtx, chatFilter(userEmail, chatID), appendUpdate(msg, time.Now().UTC()),
			options.FindOneAndUpdate().
				SetReturnDocument(options.After).
				SetProjection(bson.M{"messages": 0})).
			Decode(&chat)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("failed to append message: %w", err)
		}
		return &chat, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*model.Chat), nil
}

// UpdateChat applies the non-nil fields of update.
func (s *MongoStore) UpdateChat(ctx context.Context, userEmail, chatID string, update model.UpdateChatRequest) (*model.Chat, error) {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if update.Title != nil {
		set["title"] = *update.Title
	}
	if update.LastMessage != nil {
		set["lastMessage"] = *update.LastMessage
	}

	var chat model.Chat
	err := s.chats.FindOneAndUpdate(ctx, chatFilter(userEmail, chatID), bson.M{"$set": set},
		options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetProjection(bson.M{"messages": 0})).
		Decode(&chat)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update chat: %w", err)
	}
	return &chat, nil
}

// DeleteChat removes a chat document, embedded messages included.
func (s *MongoStore) DeleteChat(ctx context.Context, userEmail, chatID string) error {
	res, err := s.chats.DeleteOne(ctx, chatFilter(userEmail, chatID))
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceChats swaps the user's chats inside a session transaction.
func (s *MongoStore) ReplaceChats(ctx context.Context, userEmail string, chats []model.Chat) (int, error) {
	session, err := s.client.StartSession()
	if err != nil {
		return 0, fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	docs := replacementDocuments(userEmail, chats)
	_, err = session.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		if _, err := s.chats.DeleteMany(txCtx, chatOwnerFilter(userEmail)); err != nil {
			return nil, fmt.Errorf("failed to delete chats: %w", err)
		}
		if len(docs) == 0 {
			return nil, nil
		}
		if _, err := s.chats.InsertMany(txCtx, docs); err != nil {
			return nil, fmt.Errorf("failed to insert chats: %w", mapMongoError(err))
		}
		return nil, nil
	})
	if err != nil {
		return 0, err
	}
	return len(docs), nil
}

func chatOwnerFilter(userEmail string) bson.M {
	return bson.M{"userEmail": userEmail}
}

func chatFilter(userEmail, chatID string) bson.M {
	return bson.M{"userEmail": userEmail, "id": chatID}
}

// titleClaimFilter matches the chat only while it still has the default
// title and no user message.
func titleClaimFilter(userEmail, chatID string) bson.M {
	filter := chatFilter(userEmail, chatID)
	filter["title"] = model.DefaultTitle
	filter["messages.isUser"] = bson.M{"$ne": true}
	return filter
}

func titleClaimUpdate(msg model.Message) bson.M {
	return bson.M{"$set": bson.M{"title": model.DerivedTitle(msg.Text)}}
}

func appendUpdate(msg model.Message, now time.Time) bson.M {
	return bson.M{
		"$push": bson.M{"messages": msg},
		"$set": bson.M{
			"lastMessage": model.LastMessagePreview(msg.Text),
			"updatedAt":   now,
		},
	}
}

func replacementDocuments(userEmail string, chats []model.Chat) []any {
	docs := make([]any, 0, len(chats))
	for _, chat := range chats {
		chat.UserEmail = userEmail
		normalizeMessages(&chat)
		docs = append(docs, chat)
	}
	return docs
}

func normalizeMessages(chat *model.Chat) {
	if chat.Messages == nil {
		chat.Messages = []model.Message{}
	}
	for i := range chat.Messages {
		if chat.Messages[i].SourceDocuments == nil {
			chat.Messages[i].SourceDocuments = []model.SourceDocument{}
		}
	}
}

func mapMongoError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
