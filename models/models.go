package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Conversation states for the event-creation wizard and the
// add-category flow. A user is in exactly one state at a time.
const (
	StateIdle                = ""
	StateAwaitingTitle       = "awaiting_title"
	StateAwaitingDescription = "awaiting_description"
	StateAwaitingDateTime    = "awaiting_date_time"
	StateAwaitingCategory    = "awaiting_category"
	StateAwaitingNewCategory = "awaiting_new_category_name"
)

// DefaultCategories are seeded for every user at registration.
var DefaultCategories = []string{"Work", "Personal", "Health", "Other"}

// User is a registered Telegram user. UserID is the Telegram user id
// as a string and is the natural key of the users collection.
type User struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"user_id"`
	Username  string             `bson:"username"`
	FirstName string             `bson:"first_name"`
	LastName  string             `bson:"last_name"`
	CreatedAt time.Time          `bson:"created_at"`
}

// Category belongs to exactly one user. Categories are never deleted
// or renamed.
type Category struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"user_id"`
	Name      string             `bson:"name"`
	CreatedAt time.Time          `bson:"created_at"`
}

// Event is a scheduled event. DateTime is stored in UTC. Notified
// goes false -> true exactly once, flipped by the reminder scanner.
type Event struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	UserID      string             `bson:"user_id"`
	Title       string             `bson:"title"`
	Description string             `bson:"description"`
	DateTime    time.Time          `bson:"date_time"`
	CategoryID  primitive.ObjectID `bson:"category_id"`
	CreatedAt   time.Time          `bson:"created_at"`
	Notified    bool               `bson:"notified"`
}

// Draft accumulates the fields of an event while the creation wizard
// is in progress. It lives only in the bot's state map.
type Draft struct {
	Title       string
	Description string
	DateTime    time.Time
}

// UserState is the conversation state of a single user.
type UserState struct {
	State string
	Draft Draft
}

// CategoryStats is the result of the most-used-category aggregation.
type CategoryStats struct {
	Name  string
	Count int64
}
