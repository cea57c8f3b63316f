package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"
)

// EventIDKey is the telebot context key holding the update's event id.
const EventIDKey = "event_id"

// EventID returns the id assigned by UpdateLogging, or "".
func EventID(c tele.Context) string {
	id, _ := c.Get(EventIDKey).(string)
	return id
}

// UpdateKind names the kind of update for logs: callback, command or text.
func UpdateKind(c tele.Context) string {
	if c.Callback() != nil {
		return "callback"
	}
	if strings.HasPrefix(c.Text(), "/") {
		return "command"
	}
	return "text"
}

// UpdateLogging assigns each update an event id and logs its outcome once.
// The handler's error is passed through so the bot's OnError still sees it.
func UpdateLogging(logger *slog.Logger) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			start := time.Now()
			id := uuid.NewString()
			c.Set(EventIDKey, id)

			err := next(c)

			attrs := []slog.Attr{
				slog.String("event_id", id),
				slog.String("kind", UpdateKind(c)),
				slog.Duration("duration", time.Since(start)),
			}
			if sender := c.Sender(); sender != nil {
				attrs = append(attrs, slog.Int64("user_id", sender.ID))
			}
			level := slog.LevelInfo
			if err != nil {
				level = slog.LevelWarn
				attrs = append(attrs, slog.String("error", err.Error()))
			}
			logger.LogAttrs(context.Background(), level, "update", attrs...)
			return err
		}
	}
}

// UpdateRecovery turns a panicking handler into an error.
func UpdateRecovery(logger *slog.Logger) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("panic recovered",
						slog.Any("error", r),
						slog.String("event_id", EventID(c)),
						slog.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("handler panic: %v", r)
				}
			}()
			return next(c)
		}
	}
}
