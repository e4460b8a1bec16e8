// Package flowdash provides a Go SDK for the flowdash-server API.
package flowdash

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ChannelStats is one channel's health as reported by the server.
type ChannelStats struct {
	Channel         string `json:"channel"`
	State           string `json:"state"`
	MessageCount    uint64 `json:"messageCount"`
	SubscriberCount int    `json:"subscriberCount"`
	LastError       string `json:"lastError,omitempty"`
}

// Stats is the stream health summary.
type Stats struct {
	Global   string         `json:"global"`
	Enabled  bool           `json:"enabled"`
	Channels []ChannelStats `json:"channels"`
}

// FlowEvent is a single options-flow print.
type FlowEvent struct {
	Symbol     string  `json:"symbol"`
	OptionType string  `json:"option_type"`
	Strike     float64 `json:"strike"`
	Expiry     string  `json:"expiry"`
	Side       string  `json:"side"`
	Price      float64 `json:"price"`
	Size       int64   `json:"size"`
	Premium    float64 `json:"premium"`
	Timestamp  int64   `json:"timestamp"`
}

// Position is one open position in the portfolio snapshot.
type Position struct {
	Symbol       string  `json:"symbol"`
	Qty          float64 `json:"qty"`
	AvgEntry     float64 `json:"avg_entry"`
	MarketValue  float64 `json:"market_value"`
	UnrealizedPL float64 `json:"unrealized_pl"`
}

// Portfolio is the account snapshot.
type Portfolio struct {
	Equity      float64    `json:"equity"`
	Cash        float64    `json:"cash"`
	BuyingPower float64    `json:"buying_power"`
	Positions   []Position `json:"positions"`
	Timestamp   int64      `json:"timestamp"`
}

// Client provides a Go SDK for interacting with the flowdash-server
// API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new flowdash API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GetStats retrieves per-channel stream health.
func (c *Client) GetStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.get(ctx, "/api/stream/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Reconnect forces a reconnect of one channel.
func (c *Client) Reconnect(ctx context.Context, channel string) error {
	return c.post(ctx, "/api/stream/reconnect", map[string]string{"channel": channel}, nil)
}

// ReconnectAll forces a reconnect of every channel with subscribers.
func (c *Client) ReconnectAll(ctx context.Context) error {
	return c.post(ctx, "/api/stream/reconnect", map[string]string{}, nil)
}

// SetEnabled flips the streaming gate. Disabling tears down every
// connection; enabling reconnects channels that still have
// subscribers.
func (c *Client) SetEnabled(ctx context.Context, enabled bool) error {
	return c.post(ctx, "/api/stream/enabled", map[string]bool{"enabled": enabled}, nil)
}

// RecentFlow retrieves the most recent flow events, newest first.
// limit <= 0 uses the server default.
func (c *Client) RecentFlow(ctx context.Context, limit int) ([]FlowEvent, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Events []FlowEvent `json:"events"`
	}
	if err := c.get(ctx, "/api/flow/recent", q, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// GetPortfolio retrieves the latest portfolio snapshot.
func (c *Client) GetPortfolio(ctx context.Context) (*Portfolio, error) {
	var p Portfolio
	if err := c.get(ctx, "/api/portfolio", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ---

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s", req.Method, req.URL.Path, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
