package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"eventbot/db"
	"eventbot/models"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeSender struct {
	sent     []tgbotapi.MessageConfig
	failSend bool
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.failSend {
		return tgbotapi.Message{}, errors.New("send failed")
	}
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) lastText(t *testing.T) string {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("no messages sent")
	}
	return f.sent[len(f.sent)-1].Text
}

func newTestBot() (*Bot, *db.Memory, *fakeSender) {
	store := db.NewMemory()
	sender := &fakeSender{}
	b := &Bot{
		sender: sender,
		store:  store,
		log:    zerolog.Nop(),
		now:    func() time.Time { return testNow },
		states: make(map[int64]*models.UserState),
	}
	return b, store, sender
}

func textMessage(userID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID, UserName: "alice", FirstName: "Alice"},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: text,
	}
}

func startCommand(userID int64) *tgbotapi.Message {
	msg := textMessage(userID, "/start")
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}}
	return msg
}

func categoryCallback(userID int64, data string) *tgbotapi.CallbackQuery {
	return &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID},
		Data:    data,
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: userID}},
	}
}

func findCategory(t *testing.T, store *db.Memory, userID int64, name string) models.Category {
	t.Helper()
	categories, err := store.ListCategories(context.Background(), strconv.FormatInt(userID, 10))
	require.NoError(t, err)
	for _, c := range categories {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("category %q not found", name)
	return models.Category{}
}

func TestStartRegistersUserIdempotently(t *testing.T) {
	b, store, _ := newTestBot()
	ctx := context.Background()

	b.handleMessage(ctx, startCommand(1))
	b.handleMessage(ctx, startCommand(1))

	require.Equal(t, 1, store.UserCount())

	categories, err := store.ListCategories(ctx, "1")
	require.NoError(t, err)
	require.Len(t, categories, 4, "default categories must not duplicate")
}

func TestCreateEventFullFlow(t *testing.T) {
	b, store, sender := newTestBot()
	ctx := context.Background()

	b.handleMessage(ctx, startCommand(1))
	b.handleMessage(ctx, textMessage(1, btnCreateEvent))
	require.Equal(t, models.StateAwaitingTitle, b.userState(1).State)

	// Empty inputs re-prompt in place.
	b.handleMessage(ctx, textMessage(1, ""))
	require.Equal(t, models.StateAwaitingTitle, b.userState(1).State)
	require.Contains(t, sender.lastText(t), "Title cannot be empty")

	b.handleMessage(ctx, textMessage(1, "Team Sync"))
	require.Equal(t, models.StateAwaitingDescription, b.userState(1).State)

	b.handleMessage(ctx, textMessage(1, ""))
	require.Equal(t, models.StateAwaitingDescription, b.userState(1).State)

	b.handleMessage(ctx, textMessage(1, "Weekly"))
	require.Equal(t, models.StateAwaitingDateTime, b.userState(1).State)

	// Unparsable and past inputs are rejected for different reasons.
	b.handleMessage(ctx, textMessage(1, "not a date"))
	require.Equal(t, models.StateAwaitingDateTime, b.userState(1).State)
	require.Contains(t, sender.lastText(t), "Invalid date format")

	b.handleMessage(ctx, textMessage(1, "2020-01-01 10:00"))
	require.Equal(t, models.StateAwaitingDateTime, b.userState(1).State)
	require.Contains(t, sender.lastText(t), "future date")

	b.handleMessage(ctx, textMessage(1, "2099-01-01 10:00"))
	require.Equal(t, models.StateAwaitingCategory, b.userState(1).State)

	work := findCategory(t, store, 1, "Work")
	b.handleCallbackQuery(ctx, categoryCallback(1, callbackCategoryPrefix+work.ID.Hex()))
	require.Equal(t, models.StateIdle, b.userState(1).State)
	require.Contains(t, sender.lastText(t), "created successfully")

	events, err := store.UpcomingEvents(ctx, "1", testNow)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, "Team Sync", events[0].Title)
	require.Equal(t, "Weekly", events[0].Description)
	require.Equal(t, time.Date(2099, 1, 1, 10, 0, 0, 0, time.UTC), events[0].DateTime)
	require.Equal(t, work.ID, events[0].CategoryID)
	require.False(t, events[0].Notified)
}

func TestMenuActionResetsConversation(t *testing.T) {
	b, store, _ := newTestBot()
	ctx := context.Background()

	b.handleMessage(ctx, startCommand(1))
	b.handleMessage(ctx, textMessage(1, btnCreateEvent))
	b.handleMessage(ctx, textMessage(1, "Half-done draft"))
	require.Equal(t, models.StateAwaitingDescription, b.userState(1).State)

	b.handleMessage(ctx, textMessage(1, btnStatistics))
	require.Equal(t, models.StateIdle, b.userState(1).State)
	require.Equal(t, models.Draft{}, b.userState(1).Draft)

	events, err := store.UpcomingEvents(ctx, "1", testNow)
	require.NoError(t, err)
	require.Empty(t, events, "abandoned draft must not become an event")
}

func TestAddCategoryDivertDiscardsDraft(t *testing.T) {
	b, store, sender := newTestBot()
	ctx := context.Background()

	b.handleMessage(ctx, startCommand(1))
	b.handleMessage(ctx, textMessage(1, btnCreateEvent))
	b.handleMessage(ctx, textMessage(1, "Team Sync"))
	b.handleMessage(ctx, textMessage(1, "Weekly"))
	b.handleMessage(ctx, textMessage(1, "2099-01-01 10:00"))
	require.Equal(t, models.StateAwaitingCategory, b.userState(1).State)

	b.handleCallbackQuery(ctx, categoryCallback(1, callbackAddCategory))
	require.Equal(t, models.StateAwaitingNewCategory, b.userState(1).State)

	b.handleMessage(ctx, textMessage(1, "  "))
	require.Equal(t, models.StateAwaitingNewCategory, b.userState(1).State)
	require.Contains(t, sender.lastText(t), "cannot be empty")

	b.handleMessage(ctx, textMessage(1, "Projects"))
	require.Equal(t, models.StateIdle, b.userState(1).State)

	categories, err := store.ListCategories(ctx, "1")
	require.NoError(t, err)
	require.Len(t, categories, 5)

	// The in-flight event draft is gone; creation does not resume.
	events, err := store.UpcomingEvents(ctx, "1", testNow)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestCategorySelectionIgnoredWhenIdle(t *testing.T) {
	b, store, _ := newTestBot()
	ctx := context.Background()

	b.handleMessage(ctx, startCommand(1))
	work := findCategory(t, store, 1, "Work")

	b.handleCallbackQuery(ctx, categoryCallback(1, callbackCategoryPrefix+work.ID.Hex()))

	events, err := store.UpcomingEvents(ctx, "1", testNow)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestStatisticsZeroEvents(t *testing.T) {
	b, _, sender := newTestBot()
	ctx := context.Background()

	b.handleMessage(ctx, startCommand(1))
	b.handleMessage(ctx, textMessage(1, btnStatistics))

	got := sender.lastText(t)
	require.Contains(t, got, "Events created this month: 0")
	require.Contains(t, got, "Most used category: None (0 events)")
}

func TestStatisticsCountsCurrentMonthOnly(t *testing.T) {
	b, store, sender := newTestBot()
	ctx := context.Background()

	b.handleMessage(ctx, startCommand(1))
	work := findCategory(t, store, 1, "Work")
	health := findCategory(t, store, 1, "Health")

	for _, e := range []models.Event{
		{UserID: "1", Title: "a", CategoryID: work.ID, DateTime: testNow.Add(time.Hour), CreatedAt: testNow},
		{UserID: "1", Title: "b", CategoryID: work.ID, DateTime: testNow.Add(2 * time.Hour), CreatedAt: testNow.Add(-time.Hour)},
		{UserID: "1", Title: "c", CategoryID: health.ID, DateTime: testNow.Add(3 * time.Hour), CreatedAt: testNow.AddDate(0, -1, 0)},
	} {
		_, err := store.CreateEvent(ctx, e)
		require.NoError(t, err)
	}

	b.handleMessage(ctx, textMessage(1, btnStatistics))

	got := sender.lastText(t)
	require.Contains(t, got, "Events created this month: 2")
	require.Contains(t, got, "Most used category: Work (2 events)")
}

func TestUpcomingEventsListsAscending(t *testing.T) {
	b, store, sender := newTestBot()
	ctx := context.Background()

	b.handleMessage(ctx, startCommand(1))
	work := findCategory(t, store, 1, "Work")

	later := models.Event{UserID: "1", Title: "Later", Description: "d", CategoryID: work.ID,
		DateTime: testNow.Add(48 * time.Hour), CreatedAt: testNow}
	sooner := models.Event{UserID: "1", Title: "Sooner", Description: "d", CategoryID: work.ID,
		DateTime: testNow.Add(time.Hour), CreatedAt: testNow}
	for _, e := range []models.Event{later, sooner} {
		_, err := store.CreateEvent(ctx, e)
		require.NoError(t, err)
	}

	b.handleMessage(ctx, textMessage(1, btnUpcomingEvents))

	got := sender.lastText(t)
	require.Contains(t, got, "Sooner")
	require.Contains(t, got, "Later")
	require.Less(t, strings.Index(got, "Sooner"), strings.Index(got, "Later"))
	require.Contains(t, got, "Category: Work")
}

func TestMissingSenderIdentity(t *testing.T) {
	b, _, sender := newTestBot()

	b.handleMessage(context.Background(), &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: 1},
		Text: "hello",
	})

	require.Equal(t, errUserInfo, sender.lastText(t))
}
