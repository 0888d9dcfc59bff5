// Package telegram is a narrow Telegram Bot API client: long-poll update
// fetching plus the send calls the bot actually uses.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	http    *http.Client
	baseURL string
	token   string
}

func NewClient(httpClient *http.Client, baseURL, token string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

type getMeResponse struct {
	OK     bool `json:"ok"`
	Result User `json:"result"`
}

type getUpdatesResponse struct {
	OK     bool     `json:"ok"`
	Result []Update `json:"result"`
}

type okResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

// GetMe verifies the bot token and returns the bot's own user record.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	url := fmt.Sprintf("%s/bot%s/getMe", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, requestError(resp.StatusCode, raw)
	}
	var out getMeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if !out.OK {
		return nil, requestError(resp.StatusCode, raw)
	}
	return &out.Result, nil
}

// GetUpdates long-polls for new updates starting at offset and returns them
// together with the next offset to poll from. On error the caller's offset is
// returned unchanged.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, int64, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	url := fmt.Sprintf("%s/bot%s/getUpdates?timeout=%d", c.baseURL, c.token, secs)
	if offset > 0 {
		url += fmt.Sprintf("&offset=%d", offset)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, offset, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, offset, err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, offset, requestError(resp.StatusCode, raw)
	}

	var out getUpdatesResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, offset, err
	}
	if !out.OK {
		return nil, offset, requestError(resp.StatusCode, raw)
	}

	next := offset
	for _, u := range out.Result {
		if u.UpdateID >= next {
			next = u.UpdateID + 1
		}
	}
	return out.Result, next, nil
}

type sendMessageRequest struct {
	ChatID           int64  `json:"chat_id"`
	Text             string `json:"text"`
	ReplyToMessageID int64  `json:"reply_to_message_id,omitempty"`
}

type sendChatActionRequest struct {
	ChatID int64  `json:"chat_id"`
	Action string `json:"action"`
}

// SendMessage sends a plain-text reply. replyToMessageID of 0 sends without
// quoting.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, replyToMessageID int64) error {
	text = strings.TrimSpace(text)
	if text == "" {
		text = "(empty)"
	}
	return c.postJSON(ctx, "sendMessage", sendMessageRequest{
		ChatID:           chatID,
		Text:             text,
		ReplyToMessageID: replyToMessageID,
	})
}

func (c *Client) SendChatAction(ctx context.Context, chatID int64, action string) error {
	return c.postJSON(ctx, "sendChatAction", sendChatActionRequest{
		ChatID: chatID,
		Action: action,
	})
}

func (c *Client) postJSON(ctx context.Context, method string, body any) error {
	b, _ := json.Marshal(body)
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	var out okResponse
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !out.OK {
		return &RequestError{
			StatusCode:  resp.StatusCode,
			ErrorCode:   out.ErrorCode,
			Description: out.Description,
			Body:        strings.TrimSpace(string(raw)),
		}
	}
	return nil
}

type RequestError struct {
	StatusCode  int
	ErrorCode   int
	Description string
	Body        string
}

func (e *RequestError) Error() string {
	if e == nil {
		return "telegram request failed"
	}
	desc := strings.TrimSpace(e.Description)
	if desc != "" {
		if e.StatusCode > 0 {
			return fmt.Sprintf("telegram http %d: %s", e.StatusCode, desc)
		}
		return "telegram: " + desc
	}
	body := strings.TrimSpace(e.Body)
	if e.StatusCode > 0 {
		if body != "" {
			return fmt.Sprintf("telegram http %d: %s", e.StatusCode, body)
		}
		return fmt.Sprintf("telegram http %d", e.StatusCode)
	}
	if body != "" {
		return "telegram: " + body
	}
	return "telegram request failed"
}

func requestError(status int, raw []byte) error {
	var out okResponse
	_ = json.Unmarshal(raw, &out)
	return &RequestError{
		StatusCode:  status,
		ErrorCode:   out.ErrorCode,
		Description: out.Description,
		Body:        strings.TrimSpace(string(raw)),
	}
}

// IsPollTimeout reports whether a getUpdates error is an ordinary long-poll
// timeout rather than a real transport failure.
func IsPollTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "client.timeout exceeded")
}
