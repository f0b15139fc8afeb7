package logger

import (
	"context"
	"fmt"
	"log/slog"
)

// AdminNotifier delivers a text notification to the operations channel.
type AdminNotifier interface {
	SendMessage(msg string)
}

// telegramHandler mirrors records at or above level to the admin channel
// while delegating everything to the wrapped handler.
type telegramHandler struct {
	next     slog.Handler
	notifier AdminNotifier
	level    slog.Level
}

// SetupTelegramHandler wraps the logger so records at or above level are
// also sent to the Telegram admin chat.
func SetupTelegramHandler(log *slog.Logger, notifier AdminNotifier, level slog.Level) *slog.Logger {
	return slog.New(&telegramHandler{
		next:     log.Handler(),
		notifier: notifier,
		level:    level,
	})
}

func (h *telegramHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *telegramHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level >= h.level && h.notifier != nil {
		text := fmt.Sprintf("[%s] %s", record.Level, record.Message)
		record.Attrs(func(attr slog.Attr) bool {
			text += fmt.Sprintf("\n%s: %s", attr.Key, attr.Value)
			return true
		})
		go h.notifier.SendMessage(text)
	}
	return h.next.Handle(ctx, record)
}

func (h *telegramHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &telegramHandler{next: h.next.WithAttrs(attrs), notifier: h.notifier, level: h.level}
}

func (h *telegramHandler) WithGroup(name string) slog.Handler {
	return &telegramHandler{next: h.next.WithGroup(name), notifier: h.notifier, level: h.level}
}
