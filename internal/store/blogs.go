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

func (s *Store) CreateBlog(ctx context.Context, title, content string, authorID int64) (model.Blog, error) {
	author, err := s.GetUser(ctx, authorID)
	if err != nil {
		return model.Blog{}, err
	}

	id, err := s.nextID(ctx, collBlogs)
	if err != nil {
		return model.Blog{}, err
	}

	now := storedNow()
	blog := model.Blog{
		ID:        id,
		Title:     title,
		Content:   content,
		AuthorID:  authorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.db.Collection(collBlogs).InsertOne(ctx, blog); err != nil {
		return model.Blog{}, fmt.Errorf("insert blog: %w", err)
	}
	blog.Author = &model.Author{ID: author.ID, Name: author.Name}
	return blog, nil
}

func (s *Store) GetBlog(ctx context.Context, id int64) (model.Blog, error) {
	var blog model.Blog
	err := s.db.Collection(collBlogs).FindOne(ctx, bson.M{"_id": id}).Decode(&blog)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Blog{}, ErrNotFound
	}
	if err != nil {
		return model.Blog{}, fmt.Errorf("find blog %d: %w", id, err)
	}
	if err := s.attachAuthors(ctx, []*model.Blog{&blog}); err != nil {
		return model.Blog{}, err
	}
	return blog, nil
}

// ListBlogs returns every blog newest-first with the author summary attached.
func (s *Store) ListBlogs(ctx context.Context) ([]model.Blog, error) {
	cursor, err := s.db.Collection(collBlogs).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list blogs: %w", err)
	}
	defer cursor.Close(ctx)

	blogs := []model.Blog{}
	if err := cursor.All(ctx, &blogs); err != nil {
		return nil, fmt.Errorf("decode blogs: %w", err)
	}

	refs := make([]*model.Blog, len(blogs))
	for i := range blogs {
		refs[i] = &blogs[i]
	}
	if err := s.attachAuthors(ctx, refs); err != nil {
		return nil, err
	}
	return blogs, nil
}

// attachAuthors resolves author summaries for a batch of blogs with a single
// users query. Blogs whose author was deleted keep a nil Author.
func (s *Store) attachAuthors(ctx context.Context, blogs []*model.Blog) error {
	if len(blogs) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(blogs))
	seen := make(map[int64]struct{}, len(blogs))
	for _, blog := range blogs {
		if _, ok := seen[blog.AuthorID]; ok {
			continue
		}
		seen[blog.AuthorID] = struct{}{}
		ids = append(ids, blog.AuthorID)
	}

	cursor, err := s.db.Collection(collUsers).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return fmt.Errorf("find blog authors: %w", err)
	}
	defer cursor.Close(ctx)

	var users []model.User
	if err := cursor.All(ctx, &users); err != nil {
		return fmt.Errorf("decode blog authors: %w", err)
	}

	byID := make(map[int64]model.Author, len(users))
	for _, user := range users {
		byID[user.ID] = model.Author{ID: user.ID, Name: user.Name}
	}
	for _, blog := range blogs {
		if author, ok := byID[blog.AuthorID]; ok {
			a := author
			blog.Author = &a
		}
	}
	return nil
}
