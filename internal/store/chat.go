package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/parleyhq/parley/internal/model"
)

// GetOrCreateDirectConversation returns the direct conversation between the
// two users, creating it on first use. The second result reports whether a new
// conversation was created.
func (s *Store) GetOrCreateDirectConversation(ctx context.Context, a, b int64) (model.Conversation, bool, error) {
	participants := directPair(a, b)
	filter := bson.M{"type": model.ConversationTypeDirect, "participants": participants}

	var conv model.Conversation
	err := s.db.Collection(collConversations).FindOne(ctx, filter).Decode(&conv)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return model.Conversation{}, false, fmt.Errorf("find direct conversation: %w", err)
	}

	id, err := s.nextID(ctx, collConversations)
	if err != nil {
		return model.Conversation{}, false, err
	}
	conv = model.Conversation{
		ID:           id,
		Type:         model.ConversationTypeDirect,
		Participants: participants,
		CreatedAt:    storedNow(),
	}
	if _, err := s.db.Collection(collConversations).InsertOne(ctx, conv); err != nil {
		// A concurrent request may have created the pair first. The unique
		// index makes that case a duplicate key: re-read and return theirs.
		if mongo.IsDuplicateKeyError(err) {
			var existing model.Conversation
			if err := s.db.Collection(collConversations).FindOne(ctx, filter).Decode(&existing); err != nil {
				return model.Conversation{}, false, fmt.Errorf("re-read direct conversation: %w", err)
			}
			return existing, false, nil
		}
		return model.Conversation{}, false, fmt.Errorf("insert conversation: %w", err)
	}
	return conv, true, nil
}

func directPair(a, b int64) []int64 {
	if a > b {
		a, b = b, a
	}
	return []int64{a, b}
}

func (s *Store) GetConversation(ctx context.Context, id int64) (model.Conversation, error) {
	var conv model.Conversation
	err := s.db.Collection(collConversations).FindOne(ctx, bson.M{"_id": id}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Conversation{}, ErrNotFound
	}
	if err != nil {
		return model.Conversation{}, fmt.Errorf("find conversation %d: %w", id, err)
	}
	return conv, nil
}

func (s *Store) ListConversationsForUser(ctx context.Context, userID int64) ([]model.Conversation, error) {
	cursor, err := s.db.Collection(collConversations).Find(ctx,
		bson.M{"participants": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	convs := []model.Conversation{}
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	return convs, nil
}

// ListMessages returns a conversation's messages oldest-first.
func (s *Store) ListMessages(ctx context.Context, conversationID int64) ([]model.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	cursor, err := s.db.Collection(collMessages).Find(ctx,
		bson.M{"conversation_id": conversationID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer cursor.Close(ctx)

	msgs := []model.Message{}
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return msgs, nil
}

// AppendMessage persists a message after checking the conversation exists.
func (s *Store) AppendMessage(ctx context.Context, conversationID, senderID int64, content string) (model.Message, error) {
	if _, err := s.GetConversation(ctx, conversationID); err != nil {
		return model.Message{}, err
	}

	id, err := s.nextID(ctx, collMessages)
	if err != nil {
		return model.Message{}, err
	}
	msg := model.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      storedNow(),
	}
	if _, err := s.db.Collection(collMessages).InsertOne(ctx, msg); err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}
