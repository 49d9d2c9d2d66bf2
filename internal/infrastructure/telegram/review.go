package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"EventPoster/internal/domain"
	"EventPoster/internal/logging"
	"EventPoster/internal/ports"
)

const (
	// MaxPollOptions is the Bot API limit for poll answers.
	MaxPollOptions = 10
	closeData      = "review:close"
	longPoll       = 10 * time.Second
	// maxPollPages bounds the pending-update scan for a poll closed elsewhere.
	maxPollPages = 10
)

// ReviewChannel hosts the approval poll in a Telegram chat.
type ReviewChannel struct {
	api    botAPI
	chatID int64
	logger *slog.Logger

	mu     sync.Mutex
	offset int
	// polls keeps the latest state seen in updates, used when a poll was closed by hand.
	polls map[string]tgbotapi.Poll
}

var _ ports.ReviewChannel = (*ReviewChannel)(nil)

// NewReviewChannel binds the bot to the review chat.
func NewReviewChannel(api botAPI, chatID int64, logger *slog.Logger) *ReviewChannel {
	if logger == nil {
		logger = logging.Discard()
	}
	return &ReviewChannel{api: api, chatID: chatID, logger: logger, polls: map[string]tgbotapi.Poll{}}
}

// MaxOptions reports the poll answer limit.
func (c *ReviewChannel) MaxOptions() int { return MaxPollOptions }

// PostImage uploads one image with its numbered caption.
func (c *ReviewChannel) PostImage(ctx context.Context, path, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	photo := tgbotapi.NewPhoto(c.chatID, tgbotapi.FilePath(path))
	photo.Caption = caption
	if _, err := c.api.Send(photo); err != nil {
		return fmt.Errorf("telegram send photo: %w", err)
	}
	return nil
}

// OpenPoll sends a public multi-answer poll, with a close button for the reviewer when closeButton is set.
func (c *ReviewChannel) OpenPoll(ctx context.Context, question string, options []string, closeButton bool) (domain.PollHandle, error) {
	if err := ctx.Err(); err != nil {
		return domain.PollHandle{}, err
	}
	if len(options) < 2 {
		// Telegram rejects polls with a single answer.
		options = append(options, "(none)")
	}

	poll := tgbotapi.NewPoll(c.chatID, question, options...)
	poll.IsAnonymous = false
	poll.AllowsMultipleAnswers = true
	if closeButton {
		poll.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ Close review", closeData)),
		)
	}

	msg, err := c.api.Send(poll)
	if err != nil {
		return domain.PollHandle{}, fmt.Errorf("telegram send poll: %w", err)
	}

	handle := domain.PollHandle{ChannelID: c.chatID, MessageID: msg.MessageID}
	if msg.Poll != nil {
		handle.PollID = msg.Poll.ID
	}
	return handle, nil
}

// EndPoll stops the poll and returns the voter count of every option.
func (c *ReviewChannel) EndPoll(ctx context.Context, handle domain.PollHandle) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	poll, err := c.api.StopPoll(tgbotapi.NewStopPoll(handle.ChannelID, handle.MessageID))
	if isAlreadyClosed(err) {
		c.logger.Info("poll already closed, reading its final state", "message_id", handle.MessageID)
		return c.closedCounts(handle)
	}
	if err != nil {
		return nil, fmt.Errorf("telegram stop poll: %w", err)
	}
	return voterCounts(poll), nil
}

// closedCounts looks the poll up in the states seen so far, then in the pending poll updates
// Telegram delivers to the bot that sent it.
func (c *ReviewChannel) closedCounts(handle domain.PollHandle) ([]int, error) {
	if handle.PollID == "" {
		return nil, fmt.Errorf("%w: message %d has no poll id", ports.ErrVotesUnknown, handle.MessageID)
	}
	if poll, ok := c.cached(handle.PollID); ok {
		return voterCounts(poll), nil
	}

	for page := 0; page < maxPollPages; page++ {
		cfg := tgbotapi.NewUpdate(c.nextOffset())
		cfg.AllowedUpdates = []string{"poll"}
		updates, err := c.api.GetUpdates(cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: message %d: get updates: %v", ports.ErrVotesUnknown, handle.MessageID, err)
		}
		if len(updates) == 0 {
			break
		}
		c.record(updates)
	}

	if poll, ok := c.cached(handle.PollID); ok {
		return voterCounts(poll), nil
	}
	c.logger.Error("poll was closed elsewhere and its votes are unknown", "message_id", handle.MessageID, "poll_id", handle.PollID)
	return nil, fmt.Errorf("%w: message %d", ports.ErrVotesUnknown, handle.MessageID)
}

func (c *ReviewChannel) cached(pollID string) (tgbotapi.Poll, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	poll, ok := c.polls[pollID]
	return poll, ok
}

func voterCounts(poll tgbotapi.Poll) []int {
	counts := make([]int, len(poll.Options))
	for i, opt := range poll.Options {
		counts[i] = opt.VoterCount
	}
	return counts
}

// AwaitClose long-polls updates until reviewerID presses the close button of handle or timeout elapses.
// A zero reviewerID accepts the button from anyone in the chat. Presses on other messages are ignored.
func (c *ReviewChannel) AwaitClose(ctx context.Context, handle domain.PollHandle, reviewerID int64, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}

		wait := min(remaining, longPoll)
		cfg := tgbotapi.NewUpdate(c.nextOffset())
		cfg.Timeout = max(int(wait/time.Second), 1)
		cfg.AllowedUpdates = []string{"callback_query", "poll"}

		updates, err := c.api.GetUpdates(cfg)
		if err != nil {
			c.logger.Warn("telegram get updates failed", "error", err)
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(min(wait, time.Second)):
			}
			continue
		}

		if c.consume(updates, handle.MessageID, reviewerID) {
			return true, nil
		}
	}
}

func (c *ReviewChannel) nextOffset() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// record advances the offset past updates and keeps the latest state of every poll seen.
func (c *ReviewChannel) record(updates []tgbotapi.Update) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range updates {
		if u.UpdateID >= c.offset {
			c.offset = u.UpdateID + 1
		}
		if u.Poll != nil {
			c.polls[u.Poll.ID] = *u.Poll
		}
	}
}

// consume records updates and reports whether a valid close request for messageID arrived.
func (c *ReviewChannel) consume(updates []tgbotapi.Update, messageID int, reviewerID int64) bool {
	c.record(updates)

	closed := false
	for _, u := range updates {
		cb := u.CallbackQuery
		if cb == nil || cb.Data != closeData || cb.From == nil {
			continue
		}
		if cb.Message == nil || cb.Message.MessageID != messageID {
			c.answer(cb.ID, "This review is no longer open.")
			continue
		}
		if reviewerID != 0 && cb.From.ID != reviewerID {
			c.answer(cb.ID, "Only the reviewer can close this poll.")
			continue
		}
		c.answer(cb.ID, "Review closed.")
		closed = true
	}
	return closed
}

func (c *ReviewChannel) answer(callbackID, text string) {
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		c.logger.Warn("telegram answer callback failed", "error", err)
	}
}
