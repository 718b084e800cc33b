package bot

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"eventbot/models"
)

// Storage is the persistence surface the handlers need. *db.Store
// and *db.Memory both satisfy it.
type Storage interface {
	UpsertUser(ctx context.Context, user models.User) error
	EnsureDefaultCategories(ctx context.Context, userID string) error
	CreateCategory(ctx context.Context, userID, name string) (primitive.ObjectID, error)
	ListCategories(ctx context.Context, userID string) ([]models.Category, error)
	GetCategory(ctx context.Context, id primitive.ObjectID) (models.Category, error)
	CreateEvent(ctx context.Context, event models.Event) (primitive.ObjectID, error)
	UpcomingEvents(ctx context.Context, userID string, now time.Time) ([]models.Event, error)
	CountEventsCreatedSince(ctx context.Context, userID string, since time.Time) (int64, error)
	MostUsedCategory(ctx context.Context, userID string) (models.CategoryStats, error)
}

// Sender is the outbound half of the Telegram client.
// *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot routes inbound updates to handlers keyed by the user's
// conversation state and owns the per-user state map.
type Bot struct {
	api    *tgbotapi.BotAPI
	sender Sender
	store  Storage
	log    zerolog.Logger
	now    func() time.Time

	statesMu sync.RWMutex
	states   map[int64]*models.UserState
}

// New creates a bot on top of an authorized API client.
func New(api *tgbotapi.BotAPI, store Storage, log zerolog.Logger) *Bot {
	return &Bot{
		api:    api,
		sender: api,
		store:  store,
		log:    log,
		now:    time.Now,
		states: make(map[int64]*models.UserState),
	}
}

// Run polls for updates until the context is canceled. Updates are
// handled on this goroutine: two steps of one user's conversation
// never run concurrently.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update := <-updates:
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

// userState returns the state record for a user, creating an idle one
// on first interaction.
func (b *Bot) userState(userID int64) *models.UserState {
	b.statesMu.RLock()
	state, ok := b.states[userID]
	b.statesMu.RUnlock()
	if ok {
		return state
	}

	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	if state, ok = b.states[userID]; !ok {
		state = &models.UserState{State: models.StateIdle}
		b.states[userID] = state
	}
	return state
}

func (b *Bot) setState(userID int64, state string) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	s, ok := b.states[userID]
	if !ok {
		s = &models.UserState{}
		b.states[userID] = s
	}
	s.State = state
}

// resetState returns a user to idle and discards any draft.
func (b *Bot) resetState(userID int64) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	b.states[userID] = &models.UserState{State: models.StateIdle}
}

func (b *Bot) updateDraft(userID int64, fn func(*models.Draft)) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	s, ok := b.states[userID]
	if !ok {
		s = &models.UserState{}
		b.states[userID] = s
	}
	fn(&s.Draft)
}

// mainMenu is the persistent reply keyboard with the four top-level
// actions.
func mainMenu() tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnCreateEvent),
			tgbotapi.NewKeyboardButton(btnUpcomingEvents),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnStatistics),
			tgbotapi.NewKeyboardButton(btnCategories),
		),
	)
	keyboard.ResizeKeyboard = true
	return keyboard
}

// categoryKeyboard lists the user's categories as inline buttons,
// one per row, plus the add-category action.
func (b *Bot) categoryKeyboard(ctx context.Context, userID string) (tgbotapi.InlineKeyboardMarkup, error) {
	categories, err := b.store.ListCategories(ctx, userID)
	if err != nil {
		return tgbotapi.InlineKeyboardMarkup{}, err
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, cat := range categories {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(cat.Name, callbackCategoryPrefix+cat.ID.Hex()),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("➕ Add Category", callbackAddCategory),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...), nil
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.sender.Send(c); err != nil {
		b.log.Error().Err(err).Msg("failed to send message")
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) replyWithMenu(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = mainMenu()
	b.send(msg)
}
