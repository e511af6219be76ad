package bot

import (
	"context"

	"github.com/RedbringerS/vfs-bot/internal/telegram"
)

const (
	checkingText     = "Checking the portal for open slots, this can take a few minutes..."
	subscribedText   = "You are now subscribed to slot updates!"
	unsubscribedText = "You are unsubscribed from slot updates."
	errorText        = "Could not complete the action, try again later."
)

// subscriptionButton renders the single menu control. The "subscribe"
// affordance points at the generate callback, so a fresh subscriber gets an
// immediate check instead of waiting out the first interval.
func (b *Bot) subscriptionButton(ctx context.Context, userID int64) telegram.InlineKeyboardButton {
	subscribed, err := b.store.IsSubscribed(ctx, userID)
	if err != nil {
		// Fail closed: show the subscribe affordance.
		b.log.Error("subscription check failed", "user_id", userID, "err", err)
		subscribed = false
	}
	if subscribed {
		return telegram.InlineKeyboardButton{
			Text:         "🚫 Unsubscribe from slot updates",
			CallbackData: callbackUnsubscribe,
		}
	}
	return telegram.InlineKeyboardButton{
		Text:         "📝 Subscribe to slot updates",
		CallbackData: callbackGenerate,
	}
}

func (b *Bot) menu(ctx context.Context, userID int64) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{b.subscriptionButton(ctx, userID)},
		},
	}
}
