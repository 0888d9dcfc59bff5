// Package coffeehouse is the HTTP client for the CoffeeHouse chat-AI gateway,
// which owns the actual conversation state and produces the bot's replies.
package coffeehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Pranav24205/lydia/internal/session"
)

type Client struct {
	http      *http.Client
	baseURL   string
	accessKey string
}

func NewClient(httpClient *http.Client, baseURL, accessKey string) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		http:      httpClient,
		baseURL:   strings.TrimRight(baseURL, "/"),
		accessKey: accessKey,
	}
}

type sessionPayload struct {
	ID        string `json:"id"`
	Language  string `json:"language"`
	Available bool   `json:"available"`
	Expires   int64  `json:"expires"`
}

func (p sessionPayload) toSession() *session.Session {
	return &session.Session{
		ID:        p.ID,
		Language:  p.Language,
		Available: p.Available,
		Expires:   time.Unix(p.Expires, 0).UTC(),
	}
}

type envelope struct {
	OK        bool            `json:"ok"`
	ErrorCode string          `json:"error_code,omitempty"`
	Message   string          `json:"message,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// NewSession asks the gateway for a fresh conversation session in the given
// language.
func (c *Client) NewSession(ctx context.Context, language string) (*session.Session, error) {
	body := map[string]string{"language": session.NormalizeLanguage(language)}
	var out sessionPayload
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", body, &out); err != nil {
		return nil, fmt.Errorf("coffeehouse new session: %w", err)
	}
	return out.toSession(), nil
}

// LoadSession fetches the current state of a previously issued session.
func (c *Client) LoadSession(ctx context.Context, id string) (*session.Session, error) {
	if id == "" {
		return nil, fmt.Errorf("coffeehouse load session: empty session id")
	}
	var out sessionPayload
	if err := c.do(ctx, http.MethodGet, "/v1/sessions/"+id, nil, &out); err != nil {
		return nil, fmt.Errorf("coffeehouse load session: %w", err)
	}
	return out.toSession(), nil
}

type thinkRequest struct {
	Input string `json:"input"`
}

type thinkResult struct {
	Output string `json:"output"`
}

// Think submits the user's text to the session and returns the AI reply.
// When the gateway no longer accepts the session it returns a *SessionError;
// the caller is expected to replace the session and retry.
func (c *Client) Think(ctx context.Context, s *session.Session, input string) (string, error) {
	if s == nil || s.ID == "" {
		return "", fmt.Errorf("coffeehouse think: no session")
	}
	var out thinkResult
	if err := c.do(ctx, http.MethodPost, "/v1/sessions/"+s.ID+"/think", thinkRequest{Input: input}, &out); err != nil {
		return "", err
	}
	return out.Output, nil
}

type updateSessionRequest struct {
	Available bool `json:"available"`
}

// UpdateSession pushes the session's availability flag back to the gateway.
func (c *Client) UpdateSession(ctx context.Context, s *session.Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("coffeehouse update session: no session")
	}
	if err := c.do(ctx, http.MethodPatch, "/v1/sessions/"+s.ID, updateSessionRequest{Available: s.Available}, nil); err != nil {
		return fmt.Errorf("coffeehouse update session: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.accessKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	raw, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("coffeehouse http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return fmt.Errorf("coffeehouse decode response: %w", err)
	}
	if !env.OK {
		if isSessionErrorCode(env.ErrorCode) {
			return &SessionError{Code: env.ErrorCode, Message: env.Message}
		}
		if env.Message != "" {
			return fmt.Errorf("coffeehouse %s: %s", env.ErrorCode, env.Message)
		}
		return fmt.Errorf("coffeehouse http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("coffeehouse decode result: %w", err)
	}
	return nil
}
