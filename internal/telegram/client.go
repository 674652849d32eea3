package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fils-quiz-bot/internal/domain"
)

const defaultAPIBase = "https://api.telegram.org"

// APIError is a Bot API call that came back with ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s failed (%d): %s", e.Method, e.Code, e.Description)
}

// Client is a minimal Bot API client covering what the bot sends and receives.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithAPIBase points the client at another Bot API server (tests, local bot API).
func WithAPIBase(base string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

func NewClient(token string, opts ...ClientOption) (*Client, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("telegram bot token is required")
	}
	c := &Client{
		baseURL: defaultAPIBase,
		http:    &http.Client{Timeout: 65 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.baseURL = c.baseURL + "/bot" + token
	return c, nil
}

// Deliver renders msg for chatID. Messages with ReplaceMessageID edit that message in place and
// fall back to a fresh message when the edit is rejected.
func (c *Client) Deliver(ctx context.Context, chatID int64, msg domain.Message) error {
	if msg.ReplaceMessageID != 0 && msg.ContactButton == "" && !msg.RemoveKeyboard {
		err := c.editMessageText(ctx, chatID, msg)
		if err == nil || isNotModified(err) {
			return nil
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return err
		}
	}
	_, err := c.sendMessage(ctx, chatID, msg)
	return err
}

// Send implements app.MessageSink without pacing.
func (c *Client) Send(ctx context.Context, chatID int64, msg domain.Message) error {
	return c.Deliver(ctx, chatID, msg)
}

// SendText sends plain text without markup.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) (int64, error) {
	return c.sendMessage(ctx, chatID, domain.Message{Text: text})
}

func (c *Client) sendMessage(ctx context.Context, chatID int64, msg domain.Message) (int64, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    msg.Text,
	}
	if msg.Markdown {
		payload["parse_mode"] = "Markdown"
	}
	if markup := replyMarkup(msg); markup != nil {
		payload["reply_markup"] = markup
	}
	var sent Message
	if err := c.call(ctx, "sendMessage", payload, &sent); err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (c *Client) editMessageText(ctx context.Context, chatID int64, msg domain.Message) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": msg.ReplaceMessageID,
		"text":       msg.Text,
	}
	if msg.Markdown {
		payload["parse_mode"] = "Markdown"
	}
	if len(msg.Buttons) > 0 {
		payload["reply_markup"] = inlineMarkup(msg.Buttons)
	}
	return c.call(ctx, "editMessageText", payload, nil)
}

// AnswerCallbackQuery acknowledges a button tap, optionally with a toast.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID, text string) error {
	payload := map[string]any{"callback_query_id": callbackID}
	if text != "" {
		payload["text"] = text
	}
	return c.call(ctx, "answerCallbackQuery", payload, nil)
}

// GetUpdates long-polls for updates starting at offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	seconds := int(timeout / time.Second)
	if seconds < 0 {
		seconds = 0
	} else if seconds > 50 {
		seconds = 50
	}
	payload := map[string]any{
		"timeout":         seconds,
		"allowed_updates": []string{"message", "callback_query"},
	}
	if offset > 0 {
		payload["offset"] = offset
	}
	var updates []Update
	if err := c.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// SetWebhook registers url for push delivery; Telegram echoes secret in X-Telegram-Bot-Api-Secret-Token.
func (c *Client) SetWebhook(ctx context.Context, url, secret string) error {
	payload := map[string]any{
		"url":             url,
		"allowed_updates": []string{"message", "callback_query"},
	}
	if secret != "" {
		payload["secret_token"] = secret
	}
	return c.call(ctx, "setWebhook", payload, nil)
}

// DeleteWebhook switches the bot back to getUpdates.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", map[string]any{}, nil)
}

// GetMe returns the bot's own user, useful as a token check.
func (c *Client) GetMe(ctx context.Context) (User, error) {
	var me User
	err := c.call(ctx, "getMe", map[string]any{}, &me)
	return me, err
}

func (c *Client) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("telegram %s: read body: %w", method, err)
	}
	var ar apiResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return fmt.Errorf("telegram %s status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if !ar.OK {
		return &APIError{Method: method, Code: ar.ErrorCode, Description: ar.Description}
	}
	if out == nil || len(ar.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(ar.Result, out); err != nil {
		return fmt.Errorf("telegram %s: decode result: %w", method, err)
	}
	return nil
}

func isNotModified(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "message is not modified")
}

func replyMarkup(msg domain.Message) any {
	switch {
	case msg.ContactButton != "":
		return replyKeyboard{
			Keyboard:        [][]keyboardButton{{{Text: msg.ContactButton, RequestContact: true}}},
			ResizeKeyboard:  true,
			OneTimeKeyboard: true,
		}
	case msg.RemoveKeyboard:
		return removeKeyboard{RemoveKeyboard: true}
	case len(msg.Buttons) > 0:
		return inlineMarkup(msg.Buttons)
	default:
		return nil
	}
}

func inlineMarkup(rows [][]domain.Button) inlineKeyboard {
	out := make([][]inlineButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]inlineButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, inlineButton{Text: b.Text, CallbackData: b.Data, URL: b.URL})
		}
		out = append(out, buttons)
	}
	return inlineKeyboard{InlineKeyboard: out}
}
