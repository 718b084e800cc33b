package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"eventbot/models"
)

// ErrNotFound is returned when a lookup matches no document.
var ErrNotFound = errors.New("not found")

// Store is the persistence gateway over the users, categories and
// events collections.
type Store struct {
	client     *mongo.Client
	users      *mongo.Collection
	categories *mongo.Collection
	events     *mongo.Collection
}

// Connect opens a client against the given URI and verifies the
// connection with a ping.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	database := client.Database(dbName)
	return &Store{
		client:     client,
		users:      database.Collection("users"),
		categories: database.Collection("categories"),
		events:     database.Collection("events"),
	}, nil
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// UpsertUser registers or refreshes a user keyed by its Telegram id.
// All profile fields are overwritten on every call.
func (s *Store) UpsertUser(ctx context.Context, user models.User) error {
	_, err := s.users.UpdateOne(ctx,
		bson.M{"user_id": user.UserID},
		bson.M{"$set": bson.M{
			"username":   user.Username,
			"first_name": user.FirstName,
			"last_name":  user.LastName,
			"created_at": time.Now().UTC(),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", user.UserID, err)
	}
	return nil
}

// EnsureDefaultCategories seeds the default category set for a user.
// Each category is upserted by (user_id, name), so repeated
// registration never duplicates them.
func (s *Store) EnsureDefaultCategories(ctx context.Context, userID string) error {
	for _, name := range models.DefaultCategories {
		_, err := s.categories.UpdateOne(ctx,
			bson.M{"user_id": userID, "name": name},
			bson.M{"$set": bson.M{"name": name}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("failed to seed category %q for user %s: %w", name, userID, err)
		}
	}
	return nil
}

// CreateCategory inserts a user-defined category and returns its id.
func (s *Store) CreateCategory(ctx context.Context, userID, name string) (primitive.ObjectID, error) {
	res, err := s.categories.InsertOne(ctx, models.Category{
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("failed to insert category: %w", err)
	}
	return res.InsertedID.(primitive.ObjectID), nil
}

// ListCategories returns all categories owned by a user.
func (s *Store) ListCategories(ctx context.Context, userID string) ([]models.Category, error) {
	cur, err := s.categories.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	var categories []models.Category
	if err := cur.All(ctx, &categories); err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}
	return categories, nil
}

// GetCategory looks up one category by id.
func (s *Store) GetCategory(ctx context.Context, id primitive.ObjectID) (models.Category, error) {
	var category models.Category
	err := s.categories.FindOne(ctx, bson.M{"_id": id}).Decode(&category)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Category{}, ErrNotFound
	}
	if err != nil {
		return models.Category{}, fmt.Errorf("failed to get category %s: %w", id.Hex(), err)
	}
	return category, nil
}

// CreateEvent inserts a new event and returns its id.
func (s *Store) CreateEvent(ctx context.Context, event models.Event) (primitive.ObjectID, error) {
	res, err := s.events.InsertOne(ctx, event)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("failed to insert event: %w", err)
	}
	return res.InsertedID.(primitive.ObjectID), nil
}

// UpcomingEvents returns a user's not-yet-notified events scheduled
// at or after now, ascending by scheduled time.
func (s *Store) UpcomingEvents(ctx context.Context, userID string, now time.Time) ([]models.Event, error) {
	cur, err := s.events.Find(ctx,
		bson.M{
			"user_id":   userID,
			"date_time": bson.M{"$gte": now},
			"notified":  false,
		},
		options.Find().SetSort(bson.D{{Key: "date_time", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query upcoming events: %w", err)
	}
	var events []models.Event
	if err := cur.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode upcoming events: %w", err)
	}
	return events, nil
}

// DueEvents returns every not-yet-notified event, across all users,
// scheduled at or before the given deadline.
func (s *Store) DueEvents(ctx context.Context, deadline time.Time) ([]models.Event, error) {
	cur, err := s.events.Find(ctx, bson.M{
		"date_time": bson.M{"$lte": deadline},
		"notified":  false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query due events: %w", err)
	}
	var events []models.Event
	if err := cur.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode due events: %w", err)
	}
	return events, nil
}

// MarkNotified flips an event's notified flag in a single conditional
// update: the precondition notified=false makes the transition
// race-free against concurrent scan cycles. It reports whether this
// call performed the transition.
func (s *Store) MarkNotified(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := s.events.UpdateOne(ctx,
		bson.M{"_id": id, "notified": false},
		bson.M{"$set": bson.M{"notified": true}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark event %s notified: %w", id.Hex(), err)
	}
	return res.ModifiedCount > 0, nil
}

// CountEventsCreatedSince counts a user's events created at or after
// the given instant.
func (s *Store) CountEventsCreatedSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	count, err := s.events.CountDocuments(ctx, bson.M{
		"user_id":    userID,
		"created_at": bson.M{"$gte": since},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

// MostUsedCategory returns the category carrying the most of the
// user's events, with its event count. A user with no events gets the
// zero value and no error.
func (s *Store) MostUsedCategory(ctx context.Context, userID string) (models.CategoryStats, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"user_id": userID}}},
		{{Key: "$group", Value: bson.M{"_id": "$category_id", "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.M{"count": -1}}},
		{{Key: "$limit", Value: 1}},
		{{Key: "$lookup", Value: bson.M{
			"from":         "categories",
			"localField":   "_id",
			"foreignField": "_id",
			"as":           "category",
		}}},
		{{Key: "$unwind", Value: "$category"}},
	}

	cur, err := s.events.Aggregate(ctx, pipeline)
	if err != nil {
		return models.CategoryStats{}, fmt.Errorf("failed to aggregate category usage: %w", err)
	}

	var rows []struct {
		Count    int64           `bson:"count"`
		Category models.Category `bson:"category"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return models.CategoryStats{}, fmt.Errorf("failed to decode category usage: %w", err)
	}
	if len(rows) == 0 {
		return models.CategoryStats{}, nil
	}
	return models.CategoryStats{Name: rows[0].Category.Name, Count: rows[0].Count}, nil
}
