// Package telegram renders pick messages and delivers them through a
// pool of bots behind a profit-ordered priority queue.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const apiBaseURL = "https://api.telegram.org"

// ErrForbidden means the bot is not a member of the channel (or was
// kicked). The message may still go out through another bot.
var ErrForbidden = errors.New("telegram: bot forbidden in chat")

// ErrBadRequest means Telegram rejected the message itself (bad chat
// id, malformed HTML). Retrying with another bot cannot help.
var ErrBadRequest = errors.New("telegram: bad request")

// RetryAfterError is Telegram's flood-wait response.
type RetryAfterError struct {
	Seconds int
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("telegram: retry after %ds", e.Seconds)
}

// Bot is one sending identity. Several bots share the channel load so a
// single flood-wait does not stall delivery.
type Bot struct {
	Label string // "bot-0", "bot-1", ... for logs; never the token

	http *resty.Client
}

// NewBot creates a bot client for one token.
func NewBot(token, label string) *Bot {
	return &Bot{
		Label: label,
		http: resty.New().
			SetBaseURL(fmt.Sprintf("%s/bot%s", apiBaseURL, token)).
			SetTimeout(15 * time.Second).
			SetHeader("Content-Type", "application/json"),
	}
}

type sendMessageRequest struct {
	ChatID                int64  `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
	DisableNotification   bool   `json:"disable_notification"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// SendMessage posts one HTML message to a chat. Error kinds the caller
// can branch on: *RetryAfterError (flood wait), ErrForbidden (rotate
// bot), ErrBadRequest (drop message); anything else is transient.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, html string) error {
	var result apiResponse
	resp, err := b.http.R().
		SetContext(ctx).
		SetBody(sendMessageRequest{
			ChatID:                chatID,
			Text:                  html,
			ParseMode:             "HTML",
			DisableWebPagePreview: true,
			DisableNotification:   true,
		}).
		SetResult(&result).
		SetError(&result).
		Post("/sendMessage")
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if result.OK {
		return nil
	}

	switch resp.StatusCode() {
	case http.StatusTooManyRequests:
		secs := result.Parameters.RetryAfter
		if secs <= 0 {
			secs = 1
		}
		return &RetryAfterError{Seconds: secs}
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrForbidden, result.Description)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrBadRequest, result.Description)
	default:
		return fmt.Errorf("send message: status %d: %s", resp.StatusCode(), result.Description)
	}
}

// SetBaseURL points the bot at a different API host. Test hook.
func (b *Bot) SetBaseURL(url string) {
	b.http.SetBaseURL(url)
}
