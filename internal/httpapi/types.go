// Package httpapi provides the REST surface of the flowdash backend:
// stream health and controls, recent-flow queries, and the portfolio
// snapshot, in the JSON shapes the dashboard UI renders.
package httpapi

import "flowdash/internal/stream"

// ChannelStatsJSON is the JSON representation of one channel's health.
type ChannelStatsJSON struct {
	Channel         string `json:"channel"`
	State           string `json:"state"`
	MessageCount    uint64 `json:"messageCount"`
	SubscriberCount int    `json:"subscriberCount"`
	LastError       string `json:"lastError,omitempty"`
}

// StatsResponse is the payload of GET /api/stream/stats.
type StatsResponse struct {
	Global   string             `json:"global"`
	Enabled  bool               `json:"enabled"`
	Channels []ChannelStatsJSON `json:"channels"`
}

// ReconnectRequest is the payload of POST /api/stream/reconnect. An
// empty channel reconnects every channel with subscribers.
type ReconnectRequest struct {
	Channel string `json:"channel,omitempty"`
}

// EnabledRequest is the payload of POST /api/stream/enabled.
type EnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// FlowResponse is the payload of GET /api/flow/recent.
type FlowResponse struct {
	Events []stream.FlowEvent `json:"events"`
}

// ErrorResponse is the JSON body of non-2xx replies.
type ErrorResponse struct {
	Error string `json:"error"`
}
