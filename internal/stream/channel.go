// Package stream implements the real-time subscription manager that
// multiplexes dashboard consumers onto upstream live-data connections.
//
// Each logical channel (options flow, gamma exposure, portfolio, quotes)
// is backed by at most one WebSocket connection, opened when the first
// subscriber appears and closed when the last one disposes. Inbound
// frames are decoded once per channel and fanned out to every current
// subscriber.
package stream

import (
	"errors"
	"fmt"
	"strings"
)

// ChannelID identifies one of the fixed set of live-data channels.
type ChannelID string

const (
	// ChannelFlow carries individual options-flow prints.
	ChannelFlow ChannelID = "flow"
	// ChannelGex carries gamma-exposure surface snapshots.
	ChannelGex ChannelID = "gex"
	// ChannelPortfolio carries account and position updates.
	ChannelPortfolio ChannelID = "portfolio"
	// ChannelQuotes carries top-of-book quotes for watched symbols.
	ChannelQuotes ChannelID = "quotes"
)

// ErrUnknownChannel is returned for channel identifiers outside the
// fixed set. An unknown channel is a programming error at the call
// site, not a transient fault.
var ErrUnknownChannel = errors.New("stream: unknown channel")

// endpointPaths maps each channel to its upstream endpoint path.
var endpointPaths = map[ChannelID]string{
	ChannelFlow:      "/v1/stream/flow",
	ChannelGex:       "/v1/stream/gex",
	ChannelPortfolio: "/v1/stream/portfolio",
	ChannelQuotes:    "/v1/stream/quotes",
}

// channelOrder is the stable iteration order used by Channels and Stats.
var channelOrder = []ChannelID{ChannelFlow, ChannelGex, ChannelPortfolio, ChannelQuotes}

// Channels returns every known channel in a stable order.
func Channels() []ChannelID {
	out := make([]ChannelID, len(channelOrder))
	copy(out, channelOrder)
	return out
}

// Known reports whether ch is one of the fixed channels.
func Known(ch ChannelID) bool {
	_, ok := endpointPaths[ch]
	return ok
}

// Catalog resolves channels to concrete upstream endpoint URLs. It is
// pure data: the channel set and paths are fixed at process start.
type Catalog struct {
	baseURL string
}

// NewCatalog creates a catalog rooted at the given WebSocket base URL,
// e.g. "wss://feed.example.com".
func NewCatalog(baseURL string) *Catalog {
	return &Catalog{baseURL: strings.TrimRight(baseURL, "/")}
}

// EndpointFor returns the full endpoint URL for a channel, or
// ErrUnknownChannel for identifiers outside the fixed set.
func (c *Catalog) EndpointFor(ch ChannelID) (string, error) {
	path, ok := endpointPaths[ch]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	return c.baseURL + path, nil
}
