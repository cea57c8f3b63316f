// Package bot connects the conversation state machine to Telegram.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"shopbot/internal/conversation"
	"shopbot/internal/middleware"
	"shopbot/internal/model"
)

// Dispatcher handles one chat event. *conversation.Machine implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev conversation.Event) error
}

// api is the subset of *tele.Bot used to deliver replies.
type api interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Delete(msg tele.Editable) error
}

// Config configures the Telegram bot.
type Config struct {
	Token          string
	PollTimeout    time.Duration // long poll timeout, default 10s
	HandlerTimeout time.Duration // per-update deadline for backend calls, default 30s
}

// Bot receives updates with a long poller and processes them one at a time.
type Bot struct {
	tb             *tele.Bot
	api            api
	logger         *slog.Logger
	handlerTimeout time.Duration
	baseCtx        context.Context
}

// New creates the Telegram client. Call Register before Start.
func New(cfg Config, logger *slog.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is required")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bot{
		logger:         logger,
		handlerTimeout: cfg.HandlerTimeout,
		baseCtx:        context.Background(),
	}

	tb, err := tele.NewBot(tele.Settings{
		Token:       cfg.Token,
		Poller:      &tele.LongPoller{Timeout: cfg.PollTimeout},
		Synchronous: true,
		OnError:     b.onError,
	})
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	b.tb = tb
	b.api = tb
	return b, nil
}

// Register routes /start, button presses and text messages to d.
func (b *Bot) Register(d Dispatcher) {
	b.tb.Use(middleware.UpdateLogging(b.logger), middleware.UpdateRecovery(b.logger))

	b.tb.Handle("/start", func(c tele.Context) error {
		return b.dispatch(c, d, conversation.EventStart)
	})
	b.tb.Handle(tele.OnCallback, func(c tele.Context) error {
		err := b.dispatch(c, d, conversation.EventCallback)
		// Stop the client's loading spinner whatever happened.
		if respErr := c.Respond(); respErr != nil {
			b.logger.Debug("answering callback", slog.Any("error", respErr))
		}
		return err
	})
	b.tb.Handle(tele.OnText, func(c tele.Context) error {
		return b.dispatch(c, d, conversation.EventText)
	})
}

// Start polls until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) {
	b.baseCtx = ctx
	go func() {
		<-ctx.Done()
		b.tb.Stop()
	}()
	b.logger.Info("telegram bot started", slog.String("username", b.tb.Me.Username))
	b.tb.Start()
}

func (b *Bot) dispatch(c tele.Context, d Dispatcher, kind conversation.EventKind) error {
	ev, ok := eventFromUpdate(kind, c.Sender(), c.Chat(), c.Callback(), c.Text())
	if !ok {
		return nil
	}

	ctx, cancel := context.WithTimeout(b.baseCtx, b.handlerTimeout)
	defer cancel()
	return d.Dispatch(ctx, ev)
}

// onError is the last stop for failed updates. The user gets no reply and
// retries by pressing the button again.
func (b *Bot) onError(err error, c tele.Context) {
	attrs := []slog.Attr{slog.String("error", err.Error())}
	if c != nil {
		attrs = append(attrs, slog.String("event_id", middleware.EventID(c)))
		if sender := c.Sender(); sender != nil {
			attrs = append(attrs, slog.Int64("user_id", sender.ID))
		}
	}

	level := slog.LevelError
	if errors.Is(err, model.ErrUnhandledEvent) {
		// Stale buttons and stray messages are routine.
		level = slog.LevelInfo
	}
	b.logger.LogAttrs(context.Background(), level, "update failed", attrs...)
}

// eventFromUpdate converts a telebot update into a conversation event.
// Updates without a sender or chat (channel posts) are ignored.
func eventFromUpdate(kind conversation.EventKind, sender *tele.User, chat *tele.Chat, cb *tele.Callback, text string) (conversation.Event, bool) {
	if sender == nil {
		return conversation.Event{}, false
	}

	ev := conversation.Event{
		Kind:      kind,
		UserID:    sender.ID,
		ChatID:    sender.ID,
		FirstName: sender.FirstName,
		LastName:  sender.LastName,
	}
	if chat != nil {
		ev.ChatID = chat.ID
	}

	switch kind {
	case conversation.EventCallback:
		if cb == nil {
			return conversation.Event{}, false
		}
		ev.Payload = cb.Data
		if cb.Message != nil {
			ev.MessageID = cb.Message.ID
			if cb.Message.Chat != nil {
				ev.ChatID = cb.Message.Chat.ID
			}
		}
	default:
		ev.Text = text
	}
	return ev, true
}

// Send delivers a reply as a text message, or as a photo with a caption when
// the reply carries an image path.
func (b *Bot) Send(ctx context.Context, chatID int64, reply *conversation.Reply) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := &tele.SendOptions{ReplyMarkup: inlineMarkup(reply.Keyboard)}
	var what interface{} = reply.Text
	if reply.Photo != "" {
		what = &tele.Photo{File: tele.FromDisk(reply.Photo), Caption: reply.Text}
	}

	if _, err := b.api.Send(tele.ChatID(chatID), what, opts); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// Delete removes a message.
func (b *Bot) Delete(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	if err := b.api.Delete(msg); err != nil {
		return fmt.Errorf("telegram delete: %w", err)
	}
	return nil
}

// inlineMarkup converts a keyboard. Nil for an empty keyboard, so the
// message carries no markup at all.
func inlineMarkup(kb conversation.Keyboard) *tele.ReplyMarkup {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]tele.InlineButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]tele.InlineButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tele.InlineButton{Text: btn.Label, Data: btn.Payload})
		}
		rows = append(rows, buttons)
	}
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}

var _ conversation.Messenger = (*Bot)(nil)
