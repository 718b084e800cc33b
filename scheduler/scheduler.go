// Package scheduler runs the background reminder scan.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"eventbot/db"
	"eventbot/models"
	"eventbot/utils"
)

// Lookahead is the horizon for picking up due-soon events.
const Lookahead = 5 * time.Minute

// Storage is the subset of the gateway the scanner needs.
type Storage interface {
	DueEvents(ctx context.Context, deadline time.Time) ([]models.Event, error)
	GetCategory(ctx context.Context, id primitive.ObjectID) (models.Category, error)
	MarkNotified(ctx context.Context, id primitive.ObjectID) (bool, error)
}

// Sender delivers reminder messages. *tgbotapi.BotAPI satisfies it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Scanner polls once a minute for events due within the lookahead
// window and not yet notified, delivers a reminder to the owner and
// marks the event notified on success.
type Scanner struct {
	store  Storage
	sender Sender
	log    zerolog.Logger
	cron   *cron.Cron
	now    func() time.Time
}

// New creates a stopped Scanner.
func New(store Storage, sender Sender, log zerolog.Logger) *Scanner {
	return &Scanner{
		store:  store,
		sender: sender,
		log:    log,
		cron:   cron.New(),
		now:    time.Now,
	}
}

// Start schedules the scan every minute for the process lifetime.
func (s *Scanner) Start() error {
	if _, err := s.cron.AddFunc("* * * * *", func() {
		s.Scan(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to schedule reminder scan: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop cancels the schedule. A cycle already in flight finishes.
func (s *Scanner) Stop() {
	s.cron.Stop()
}

// Scan runs one cycle. Per-event failures are logged and skipped so
// one bad event never blocks the rest; a failed delivery leaves the
// event unnotified and it is retried on the next cycle, with no
// backoff or cap.
func (s *Scanner) Scan(ctx context.Context) {
	now := s.now().UTC()
	events, err := s.store.DueEvents(ctx, now.Add(Lookahead))
	if err != nil {
		s.log.Error().Err(err).Msg("failed to query due events")
		return
	}

	for _, event := range events {
		s.remind(ctx, event)
	}
}

func (s *Scanner) remind(ctx context.Context, event models.Event) {
	category, err := s.store.GetCategory(ctx, event.CategoryID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			// Dangling category reference: skip, the event stays
			// unnotified and comes back every cycle.
			s.log.Warn().Str("event_id", event.ID.Hex()).Msg("event references missing category")
			return
		}
		s.log.Error().Err(err).Str("event_id", event.ID.Hex()).Msg("failed to resolve category")
		return
	}

	chatID, err := strconv.ParseInt(event.UserID, 10, 64)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", event.UserID).Msg("bad user id on event")
		return
	}

	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf(
		"🔔 Reminder: *%s*\nCategory: %s\nDescription: %s\nTime: %s",
		event.Title, category.Name, event.Description, utils.FormatDateTime(event.DateTime)))
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := s.sender.Send(msg); err != nil {
		s.log.Error().Err(err).
			Str("event_id", event.ID.Hex()).
			Str("user_id", event.UserID).
			Msg("failed to send reminder")
		return
	}

	if _, err := s.store.MarkNotified(ctx, event.ID); err != nil {
		s.log.Error().Err(err).Str("event_id", event.ID.Hex()).Msg("failed to mark event notified")
	}
}
