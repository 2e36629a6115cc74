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

// NewUser carries the validated fields for a user insert.
type NewUser struct {
	Name         string
	Email        string
	PasswordHash string
	Age          int
}

// UserUpdate carries a partial update. Nil fields are left untouched.
type UserUpdate struct {
	Name         *string
	Email        *string
	PasswordHash *string
	Age          *int
}

func (s *Store) CreateUser(ctx context.Context, in NewUser) (model.User, error) {
	id, err := s.nextID(ctx, collUsers)
	if err != nil {
		return model.User{}, err
	}

	now := storedNow()
	user := model.User{
		ID:           id,
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Age:          in.Age,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := s.db.Collection(collUsers).InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return model.User{}, ErrDuplicateEmail
		}
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (model.User, error) {
	var user model.User
	err := s.db.Collection(collUsers).FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user %d: %w", id, err)
	}
	return user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	var user model.User
	err := s.db.Collection(collUsers).FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user by email: %w", err)
	}
	return user, nil
}

// ListUsers returns all users, or a name/email substring match when query is
// non-empty. Search results are capped.
func (s *Store) ListUsers(ctx context.Context, query string) ([]model.User, error) {
	filter := bson.M{}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if query != "" {
		pattern := quoteRegex(query)
		filter = bson.M{"$or": bson.A{
			bson.M{"name": bson.M{"$regex": pattern, "$options": "i"}},
			bson.M{"email": bson.M{"$regex": pattern, "$options": "i"}},
		}}
		opts = opts.SetLimit(searchLimit)
	}

	cursor, err := s.db.Collection(collUsers).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer cursor.Close(ctx)

	users := []model.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

func (s *Store) UpdateUser(ctx context.Context, id int64, upd UserUpdate) (model.User, error) {
	set := bson.M{"updated_at": storedNow()}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Email != nil {
		set["email"] = *upd.Email
	}
	if upd.PasswordHash != nil {
		set["password_hash"] = *upd.PasswordHash
	}
	if upd.Age != nil {
		set["age"] = *upd.Age
	}

	var user model.User
	err := s.db.Collection(collUsers).FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return model.User{}, ErrDuplicateEmail
		}
		return model.User{}, fmt.Errorf("update user %d: %w", id, err)
	}
	return user, nil
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.Collection(collUsers).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
