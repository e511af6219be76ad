// Package telegram is a minimal Bot API client: long polling for updates
// plus the handful of send/edit calls the bot needs.
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

type Client struct {
	http  *resty.Client
	token string
}

// New builds a client against apiURL (normally https://api.telegram.org).
func New(token, apiURL string) *Client {
	client := resty.New()
	client.SetBaseURL(apiURL)
	// Long-poll requests hold the connection open for up to a minute.
	client.SetTimeout(90 * time.Second)
	return &Client{http: client, token: token}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description,omitempty"`
}

func (c *Client) call(ctx context.Context, method string, params any, result any) error {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("content-type", "application/json").
		SetBody(params).
		Post(fmt.Sprintf("/bot%s/%s", c.token, method))
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}

	var body apiResponse
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		return fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if !body.OK {
		return fmt.Errorf("telegram %s: %s", method, body.Description)
	}
	if result != nil {
		if err := json.Unmarshal(body.Result, result); err != nil {
			return fmt.Errorf("telegram %s: decode result: %w", method, err)
		}
	}
	return nil
}

// GetUpdates long-polls for updates past offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	params := map[string]any{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message", "callback_query"},
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, markup *InlineKeyboardMarkup) (*Message, error) {
	params := map[string]any{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	if markup != nil {
		params["reply_markup"] = markup
	}
	var msg Message
	if err := c.call(ctx, "sendMessage", params, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	return c.call(ctx, "editMessageText", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}, nil)
}

func (c *Client) EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, markup *InlineKeyboardMarkup) error {
	return c.call(ctx, "editMessageReplyMarkup", map[string]any{
		"chat_id":      chatID,
		"message_id":   messageID,
		"reply_markup": markup,
	}, nil)
}

func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	return c.call(ctx, "answerCallbackQuery", map[string]any{
		"callback_query_id": callbackID,
	}, nil)
}
