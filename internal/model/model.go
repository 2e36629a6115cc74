// Package model holds the persisted domain records and their wire shapes.
package model

import "time"

// User is a registered account. PasswordHash is persisted but never
// serialized to clients.
type User struct {
	ID           int64     `bson:"_id" json:"id"`
	Name         string    `bson:"name" json:"name"`
	Email        string    `bson:"email" json:"email"`
	PasswordHash string    `bson:"password_hash" json:"-"`
	Age          int       `bson:"age" json:"age"`
	IsActive     bool      `bson:"is_active" json:"is_active"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}

// Author is the embedded subset of a user attached to blog listings.
type Author struct {
	ID   int64  `bson:"id" json:"id"`
	Name string `bson:"name" json:"name"`
}

type Blog struct {
	ID        int64     `bson:"_id" json:"id"`
	Title     string    `bson:"title" json:"title"`
	Content   string    `bson:"content" json:"content"`
	AuthorID  int64     `bson:"author_id" json:"author_id"`
	Author    *Author   `bson:"-" json:"author,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

const ConversationTypeDirect = "direct"

// Conversation groups messages between a fixed set of participants. Direct
// conversations have exactly two participants and are deduplicated per pair.
type Conversation struct {
	ID           int64     `bson:"_id" json:"id"`
	Type         string    `bson:"type" json:"type"`
	Participants []int64   `bson:"participants" json:"participants"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}

type Message struct {
	ID             int64     `bson:"_id" json:"id"`
	ConversationID int64     `bson:"conversation_id" json:"conversation_id"`
	SenderID       int64     `bson:"sender_id" json:"sender_id"`
	Content        string    `bson:"content" json:"content"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
}
