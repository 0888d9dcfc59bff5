// Package analytics sends fire-and-forget usage counters to the LIU tally
// endpoint. Failures are logged and never surface to callers.
package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const tallyTimeout = 5 * time.Second

// Counter namespaces and names recorded by the bot.
const (
	Namespace = "tg_lydia"

	CounterCreatedSessions = "created_sessions"
	CounterAIResponses     = "ai_responses"
	CounterMessages        = "messages"
)

// Tallier increments a usage counter under a dimension. Dimension 0 is the
// global bucket; callers also tally under the chat id for per-chat totals.
type Tallier interface {
	Tally(namespace, counter string, dimension int64)
}

// Noop discards all tallies. Used when no analytics endpoint is configured.
type Noop struct{}

func (Noop) Tally(string, string, int64) {}

type Client struct {
	http     *http.Client
	endpoint string
	logger   *slog.Logger
}

func NewClient(httpClient *http.Client, endpoint string, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: tallyTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:     httpClient,
		endpoint: strings.TrimRight(endpoint, "/"),
		logger:   logger,
	}
}

type tallyRequest struct {
	Namespace string `json:"namespace"`
	Counter   string `json:"counter"`
	Dimension int64  `json:"dimension"`
}

// Tally posts the increment in the background; the message flow never waits
// on analytics.
func (c *Client) Tally(namespace, counter string, dimension int64) {
	go c.post(tallyRequest{Namespace: namespace, Counter: counter, Dimension: dimension})
}

func (c *Client) post(req tallyRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), tallyTimeout)
	defer cancel()

	b, _ := json.Marshal(req)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/tally", bytes.NewReader(b))
	if err != nil {
		c.logger.Warn("tally_request_error", "counter", req.Counter, "error", err)
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Warn("tally_post_error", "counter", req.Counter, "error", err)
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("tally_rejected", "counter", req.Counter, "status", resp.StatusCode)
	}
}
