package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"eventbot/models"
	"eventbot/utils"
)

// Top-level menu buttons. Pressing any of them resets the
// conversation first, discarding an in-progress draft.
const (
	btnCreateEvent    = "📅 Create Event"
	btnUpcomingEvents = "🔔 Upcoming Events"
	btnStatistics     = "📊 Statistics"
	btnCategories     = "📋 Categories"
)

// Callback payloads.
const (
	callbackCategoryPrefix = "cat_"
	callbackAddCategory    = "add_category"
)

const errUserInfo = "Error: User information not available."

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.From == nil {
		b.reply(message.Chat.ID, errUserInfo)
		return
	}

	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	// Menu buttons win over whatever conversation is in progress.
	switch message.Text {
	case btnCreateEvent:
		b.handleCreateEventStart(message)
		return
	case btnUpcomingEvents:
		b.handleUpcomingEvents(ctx, message)
		return
	case btnStatistics:
		b.handleStatistics(ctx, message)
		return
	case btnCategories:
		b.handleCategories(ctx, message)
		return
	}

	userID := message.From.ID
	chatID := message.Chat.ID

	switch b.userState(userID).State {
	case models.StateAwaitingTitle:
		b.processTitle(userID, chatID, message.Text)
	case models.StateAwaitingDescription:
		b.processDescription(userID, chatID, message.Text)
	case models.StateAwaitingDateTime:
		b.processDateTime(ctx, userID, chatID, message.Text)
	case models.StateAwaitingNewCategory:
		b.processNewCategoryName(ctx, userID, chatID, message.Text)
	default:
		b.replyWithMenu(chatID, "What would you like to do?")
	}
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(ctx, message)
	default:
		b.replyWithMenu(message.Chat.ID, "Unknown command. Use the menu below.")
	}
}

// handleStart registers the user (idempotently, including the default
// categories) and shows the main menu.
func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) {
	from := message.From
	chatID := message.Chat.ID
	b.resetState(from.ID)

	user := models.User{
		UserID:    strconv.FormatInt(from.ID, 10),
		Username:  from.UserName,
		FirstName: from.FirstName,
		LastName:  from.LastName,
	}
	if err := b.store.UpsertUser(ctx, user); err != nil {
		b.log.Error().Err(err).Str("user_id", user.UserID).Msg("failed to register user")
		b.reply(chatID, "Something went wrong. Please try again.")
		return
	}
	if err := b.store.EnsureDefaultCategories(ctx, user.UserID); err != nil {
		b.log.Error().Err(err).Str("user_id", user.UserID).Msg("failed to seed default categories")
		b.reply(chatID, "Something went wrong. Please try again.")
		return
	}

	b.replyWithMenu(chatID,
		"Welcome to the Event Reminder Bot! 🎉\n"+
			"Manage your events and get timely reminders. What would you like to do?")
}

func (b *Bot) handleCreateEventStart(message *tgbotapi.Message) {
	b.resetState(message.From.ID)
	b.setState(message.From.ID, models.StateAwaitingTitle)

	msg := tgbotapi.NewMessage(message.Chat.ID, "Enter the event title:")
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	b.send(msg)
}

func (b *Bot) handleUpcomingEvents(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID
	b.resetState(userID)

	events, err := b.store.UpcomingEvents(ctx, strconv.FormatInt(userID, 10), b.now().UTC())
	if err != nil {
		b.log.Error().Err(err).Int64("user_id", userID).Msg("failed to query upcoming events")
		b.replyWithMenu(chatID, "Something went wrong. Please try again.")
		return
	}
	if len(events) == 0 {
		b.replyWithMenu(chatID, "No upcoming events. Create one with 'Create Event'!")
		return
	}

	var sb strings.Builder
	sb.WriteString("Upcoming Events:\n\n")
	for _, event := range events {
		category, err := b.store.GetCategory(ctx, event.CategoryID)
		if err != nil {
			// Dangling reference; the entry is omitted.
			b.log.Warn().Str("event_id", event.ID.Hex()).Msg("event references missing category")
			continue
		}
		fmt.Fprintf(&sb, "📅 *%s*\nCategory: %s\nTime: %s\nDescription: %s\n\n",
			event.Title, category.Name, utils.FormatDateTime(event.DateTime), event.Description)
	}

	msg := tgbotapi.NewMessage(chatID, sb.String())
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = mainMenu()
	b.send(msg)
}

func (b *Bot) handleStatistics(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID
	b.resetState(userID)
	uid := strconv.FormatInt(userID, 10)

	monthStart := utils.StartOfMonth(b.now())
	eventsThisMonth, err := b.store.CountEventsCreatedSince(ctx, uid, monthStart)
	if err != nil {
		b.log.Error().Err(err).Str("user_id", uid).Msg("failed to count monthly events")
		b.replyWithMenu(chatID, "Something went wrong. Please try again.")
		return
	}
	mostUsed, err := b.store.MostUsedCategory(ctx, uid)
	if err != nil {
		b.log.Error().Err(err).Str("user_id", uid).Msg("failed to aggregate category usage")
		b.replyWithMenu(chatID, "Something went wrong. Please try again.")
		return
	}
	if mostUsed.Name == "" {
		mostUsed.Name = "None"
	}

	b.replyWithMenu(chatID, fmt.Sprintf(
		"📊 Statistics:\n\nEvents created this month: %d\nMost used category: %s (%d events)",
		eventsThisMonth, mostUsed.Name, mostUsed.Count))
}

func (b *Bot) handleCategories(ctx context.Context, message *tgbotapi.Message) {
	userID := message.From.ID
	chatID := message.Chat.ID
	b.resetState(userID)

	keyboard, err := b.categoryKeyboard(ctx, strconv.FormatInt(userID, 10))
	if err != nil {
		b.log.Error().Err(err).Int64("user_id", userID).Msg("failed to list categories")
		b.replyWithMenu(chatID, "Something went wrong. Please try again.")
		return
	}

	msg := tgbotapi.NewMessage(chatID, "Select a category or add a new one:")
	msg.ReplyMarkup = keyboard
	b.send(msg)
}

func (b *Bot) processTitle(userID, chatID int64, text string) {
	if text == "" {
		b.reply(chatID, "Title cannot be empty. Please enter a title:")
		return
	}
	b.updateDraft(userID, func(d *models.Draft) { d.Title = text })
	b.setState(userID, models.StateAwaitingDescription)
	b.reply(chatID, "Enter the event description:")
}

func (b *Bot) processDescription(userID, chatID int64, text string) {
	if text == "" {
		b.reply(chatID, "Description cannot be empty. Please enter a description:")
		return
	}
	b.updateDraft(userID, func(d *models.Draft) { d.Description = text })
	b.setState(userID, models.StateAwaitingDateTime)
	b.reply(chatID, "Enter the event date and time (e.g., 2025-06-15 14:30):")
}

func (b *Bot) processDateTime(ctx context.Context, userID, chatID int64, text string) {
	if text == "" {
		b.reply(chatID, "Date and time cannot be empty. Use YYYY-MM-DD HH:MM (e.g., 2025-06-15 14:30):")
		return
	}
	dateTime, err := utils.ParseDateTime(text)
	if err != nil {
		b.reply(chatID, "Invalid date format. Use YYYY-MM-DD HH:MM (e.g., 2025-06-15 14:30):")
		return
	}
	// Parsed fine but already passed; a distinct rejection from the
	// format error above.
	if !dateTime.After(b.now().UTC()) {
		b.reply(chatID, "Please enter a future date and time:")
		return
	}

	b.updateDraft(userID, func(d *models.Draft) { d.DateTime = dateTime })

	keyboard, err := b.categoryKeyboard(ctx, strconv.FormatInt(userID, 10))
	if err != nil {
		b.log.Error().Err(err).Int64("user_id", userID).Msg("failed to list categories")
		b.resetState(userID)
		b.replyWithMenu(chatID, "Something went wrong. Please try again.")
		return
	}
	b.setState(userID, models.StateAwaitingCategory)

	msg := tgbotapi.NewMessage(chatID, "Select a category:")
	msg.ReplyMarkup = keyboard
	b.send(msg)
}

func (b *Bot) processNewCategoryName(ctx context.Context, userID, chatID int64, text string) {
	name := strings.TrimSpace(text)
	if name == "" {
		b.reply(chatID, "Category name cannot be empty. Try again:")
		return
	}

	if _, err := b.store.CreateCategory(ctx, strconv.FormatInt(userID, 10), name); err != nil {
		b.log.Error().Err(err).Int64("user_id", userID).Msg("failed to add category")
		b.resetState(userID)
		b.replyWithMenu(chatID, "Failed to add category. Please try again.")
		return
	}
	b.resetState(userID)
	b.replyWithMenu(chatID, "Category added successfully!")
}

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	// Ack so the client stops showing the spinner.
	if _, err := b.sender.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		b.log.Error().Err(err).Msg("failed to answer callback query")
	}

	if callback.From == nil || callback.Message == nil {
		return
	}
	userID := callback.From.ID
	chatID := callback.Message.Chat.ID
	data := callback.Data

	switch {
	case data == callbackAddCategory:
		// Reachable both from the categories screen and from within
		// event creation. In the latter case the draft is abandoned:
		// the flow ends at the main menu without creating the event.
		b.setState(userID, models.StateAwaitingNewCategory)
		b.reply(chatID, "Enter the new category name:")

	case strings.HasPrefix(data, callbackCategoryPrefix):
		if b.userState(userID).State != models.StateAwaitingCategory {
			return
		}
		b.commitEvent(ctx, userID, chatID, strings.TrimPrefix(data, callbackCategoryPrefix))
	}
}

// commitEvent turns the accumulated draft into a durable event record
// and ends the conversation either way.
func (b *Bot) commitEvent(ctx context.Context, userID, chatID int64, categoryHex string) {
	categoryID, err := primitive.ObjectIDFromHex(categoryHex)
	if err != nil {
		b.log.Error().Err(err).Str("category", categoryHex).Msg("bad category id in callback")
		b.resetState(userID)
		b.replyWithMenu(chatID, "Failed to create event. Please try again.")
		return
	}

	draft := b.userState(userID).Draft
	event := models.Event{
		UserID:      strconv.FormatInt(userID, 10),
		Title:       draft.Title,
		Description: draft.Description,
		DateTime:    draft.DateTime,
		CategoryID:  categoryID,
		CreatedAt:   b.now().UTC(),
		Notified:    false,
	}

	if _, err := b.store.CreateEvent(ctx, event); err != nil {
		b.log.Error().Err(err).Int64("user_id", userID).Msg("failed to create event")
		b.resetState(userID)
		b.replyWithMenu(chatID, "Failed to create event. Please try again.")
		return
	}

	b.resetState(userID)
	b.replyWithMenu(chatID, fmt.Sprintf(
		"Event '%s' created successfully! You'll be reminded at the set time.", draft.Title))
}
