package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"eventbot/models"
)

// Memory is an in-memory store with the same operations as Store.
// It backs unit tests; writes are serialized by a single mutex the
// way the document store serializes per-document writes.
type Memory struct {
	mu         sync.Mutex
	users      map[string]models.User
	categories []models.Category
	events     []models.Event
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{users: make(map[string]models.User)}
}

func (m *Memory) UpsertUser(_ context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.CreatedAt = time.Now().UTC()
	m.users[user.UserID] = user
	return nil
}

func (m *Memory) EnsureDefaultCategories(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range models.DefaultCategories {
		if m.findCategoryLocked(userID, name) {
			continue
		}
		m.categories = append(m.categories, models.Category{
			ID:     primitive.NewObjectID(),
			UserID: userID,
			Name:   name,
		})
	}
	return nil
}

func (m *Memory) findCategoryLocked(userID, name string) bool {
	for _, c := range m.categories {
		if c.UserID == userID && c.Name == name {
			return true
		}
	}
	return false
}

func (m *Memory) CreateCategory(_ context.Context, userID, name string) (primitive.ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := primitive.NewObjectID()
	m.categories = append(m.categories, models.Category{
		ID:        id,
		UserID:    userID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	})
	return id, nil
}

func (m *Memory) ListCategories(_ context.Context, userID string) ([]models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Category
	for _, c := range m.categories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) GetCategory(_ context.Context, id primitive.ObjectID) (models.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.categories {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Category{}, ErrNotFound
}

func (m *Memory) CreateEvent(_ context.Context, event models.Event) (primitive.ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.ID = primitive.NewObjectID()
	m.events = append(m.events, event)
	return event.ID, nil
}

func (m *Memory) UpcomingEvents(_ context.Context, userID string, now time.Time) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Event
	for _, e := range m.events {
		if e.UserID == userID && !e.Notified && !e.DateTime.Before(now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateTime.Before(out[j].DateTime) })
	return out, nil
}

func (m *Memory) DueEvents(_ context.Context, deadline time.Time) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Event
	for _, e := range m.events {
		if !e.Notified && !e.DateTime.After(deadline) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) MarkNotified(_ context.Context, id primitive.ObjectID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.events {
		if m.events[i].ID == id && !m.events[i].Notified {
			m.events[i].Notified = true
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) CountEventsCreatedSince(_ context.Context, userID string, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, e := range m.events {
		if e.UserID == userID && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *Memory) MostUsedCategory(_ context.Context, userID string) (models.CategoryStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[primitive.ObjectID]int64)
	for _, e := range m.events {
		if e.UserID == userID {
			counts[e.CategoryID]++
		}
	}
	var best models.CategoryStats
	var bestID primitive.ObjectID
	for id, n := range counts {
		if n > best.Count {
			best.Count = n
			bestID = id
		}
	}
	if best.Count == 0 {
		return models.CategoryStats{}, nil
	}
	for _, c := range m.categories {
		if c.ID == bestID {
			best.Name = c.Name
			return best, nil
		}
	}
	// Dangling category reference: the aggregation's lookup+unwind
	// would drop the row entirely.
	return models.CategoryStats{}, nil
}

// UserCount reports how many users are registered.
func (m *Memory) UserCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}
