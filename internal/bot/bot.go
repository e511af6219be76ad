// Package bot wires the chat surface: the /start command, the subscription
// callbacks, and delivery of automation outcomes back to the user.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/RedbringerS/vfs-bot/internal/portal"
	"github.com/RedbringerS/vfs-bot/internal/session"
	"github.com/RedbringerS/vfs-bot/internal/telegram"
)

const (
	callbackGenerate    = "generate_text"
	callbackSubscribe   = "subscribe"
	callbackUnsubscribe = "unsubscribe"
)

// Chat is the slice of the Bot API the handlers use.
type Chat interface {
	SendMessage(ctx context.Context, chatID int64, text string, markup *telegram.InlineKeyboardMarkup) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, markup *telegram.InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackID string) error
}

// Store is the persistent side: user rows and the subscription registry.
type Store interface {
	EnsureUser(ctx context.Context, userID int64) error
	Subscribe(ctx context.Context, userID int64) error
	Unsubscribe(ctx context.Context, userID int64) error
	IsSubscribed(ctx context.Context, userID int64) (bool, error)
}

// Runner executes one automation run immediately.
type Runner interface {
	Run(ctx context.Context, userID int64) portal.Outcome
}

// Tasks controls the per-user polling tasks.
type Tasks interface {
	Start(ctx context.Context, userID int64) bool
	Stop(userID int64)
	FollowUpNotice() string
}

type Bot struct {
	chat     Chat
	store    Store
	runner   Runner
	tasks    Tasks
	sessions *session.Store
	log      *slog.Logger
}

func New(chat Chat, store Store, runner Runner, tasks Tasks, sessions *session.Store, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}
	return &Bot{chat: chat, store: store, runner: runner, tasks: tasks, sessions: sessions, log: log}
}

func (b *Bot) HandleMessage(ctx context.Context, msg *telegram.Message) {
	if msg.From == nil || !strings.HasPrefix(msg.Text, "/start") {
		return
	}
	userID := msg.From.ID

	// A store failure must not keep the menu from the user.
	if err := b.store.EnsureUser(ctx, userID); err != nil {
		b.log.Error("ensure user", "user_id", userID, "err", err)
	}

	b.sessions.SetPhase(userID, session.PhaseActive)
	greet := fmt.Sprintf("Hello, %s! I watch the appointment portal and tell you when a slot opens.", msg.From.FullName())
	if _, err := b.chat.SendMessage(ctx, msg.Chat.ID, greet, b.menu(ctx, userID)); err != nil {
		b.log.Error("send greeting", "user_id", userID, "err", err)
	}
}

func (b *Bot) HandleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	if err := b.chat.AnswerCallbackQuery(ctx, cb.ID); err != nil {
		b.log.Warn("answer callback", "err", err)
	}
	if cb.Message == nil {
		return
	}

	switch cb.Data {
	case callbackGenerate:
		b.handleGenerate(ctx, cb)
	case callbackSubscribe:
		b.handleSubscribe(ctx, cb)
	case callbackUnsubscribe:
		b.handleUnsubscribe(ctx, cb)
	}
}

// handleGenerate is the one-shot check with an implicit subscribe: run the
// workflow now and keep polling afterwards.
func (b *Bot) handleGenerate(ctx context.Context, cb *telegram.CallbackQuery) {
	userID := cb.From.ID
	chatID := cb.Message.Chat.ID

	b.sessions.SetPhase(userID, session.PhaseActive)
	if err := b.chat.EditMessageText(ctx, chatID, cb.Message.MessageID, checkingText); err != nil {
		b.log.Warn("edit message", "user_id", userID, "err", err)
	}

	if err := b.store.Subscribe(ctx, userID); err != nil {
		b.log.Error("subscribe", "user_id", userID, "err", err)
		b.send(ctx, chatID, errorText)
		return
	}
	b.sessions.SetSubscribed(userID, true)
	b.log.Info("user auto-subscribed", "user_id", userID)

	if err := b.chat.EditMessageReplyMarkup(ctx, chatID, cb.Message.MessageID, b.menu(ctx, userID)); err != nil {
		b.log.Warn("edit keyboard", "user_id", userID, "err", err)
	}
	b.tasks.Start(ctx, userID)

	out := b.runner.Run(ctx, userID)
	b.sessions.SetLastMessage(userID, out.Message)
	b.send(ctx, chatID, out.Message)
	b.send(ctx, chatID, b.tasks.FollowUpNotice())
}

func (b *Bot) handleSubscribe(ctx context.Context, cb *telegram.CallbackQuery) {
	userID := cb.From.ID
	chatID := cb.Message.Chat.ID

	if err := b.store.Subscribe(ctx, userID); err != nil {
		b.log.Error("subscribe", "user_id", userID, "err", err)
		b.send(ctx, chatID, errorText)
		return
	}
	b.sessions.SetPhase(userID, session.PhaseActive)
	b.sessions.SetSubscribed(userID, true)

	b.send(ctx, chatID, subscribedText)
	if err := b.chat.EditMessageReplyMarkup(ctx, chatID, cb.Message.MessageID, b.menu(ctx, userID)); err != nil {
		b.log.Warn("edit keyboard", "user_id", userID, "err", err)
	}
	b.tasks.Start(ctx, userID)
}

func (b *Bot) handleUnsubscribe(ctx context.Context, cb *telegram.CallbackQuery) {
	userID := cb.From.ID
	chatID := cb.Message.Chat.ID

	if err := b.store.Unsubscribe(ctx, userID); err != nil {
		b.log.Error("unsubscribe", "user_id", userID, "err", err)
		b.send(ctx, chatID, errorText)
		return
	}
	b.sessions.SetSubscribed(userID, false)
	b.tasks.Stop(userID)

	b.send(ctx, chatID, unsubscribedText)
	if err := b.chat.EditMessageReplyMarkup(ctx, chatID, cb.Message.MessageID, b.menu(ctx, userID)); err != nil {
		b.log.Warn("edit keyboard", "user_id", userID, "err", err)
	}
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	if _, err := b.chat.SendMessage(ctx, chatID, text, nil); err != nil {
		b.log.Error("send message", "chat_id", chatID, "err", err)
	}
}
